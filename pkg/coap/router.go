// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// requestURIPath collects the ordered Uri-Path option values from pdu.
func requestURIPath(pdu *PDU) [][]byte {
	var segments [][]byte
	pdu.WalkChecked(func(opt Option) bool {
		if opt.Number == OptionURIPath {
			segments = append(segments, opt.Value)
		}
		return true
	})
	return segments
}

// Route resolves a request's URI-path hash to a resource and invokes the
// matching per-method handler, or synthesizes the appropriate error or
// discovery response. remote is the already-decoded PeerAddress and
// remoteAddr the transport Addr needed to send a reply.
func (ctx *EndpointContext) Route(remote PeerAddress, remoteAddr Addr, pdu *PDU, tid TransactionID) {
	key := HashURIPath(requestURIPath(pdu))

	var resource *Resource
	found := false
	if ctx.Config.Registry != nil {
		resource, found = ctx.Config.Registry.Lookup(key)
	}

	if !found {
		if pdu.Code == CodeGET && key == WellKnownKey() {
			ctx.replyWellKnown(remote, remoteAddr, pdu)
			return
		}
		if pdu.Code == CodeGET {
			ctx.SendError(pdu, remote, remoteAddr, CodeNotFound, &UnknownOptionsFilter{})
			return
		}
		ctx.SendError(pdu, remote, remoteAddr, CodeMethodNotAllowed, &UnknownOptionsFilter{})
		return
	}

	handler, ok := resource.HandlerFor(pdu.Code)
	if ok {
		// The handler is fully responsible for any reply.
		handler(ctx, resource, remote, pdu, tid)
		return
	}
	if pdu.Code == CodeGET && key == WellKnownKey() {
		ctx.replyWellKnown(remote, remoteAddr, pdu)
		return
	}
	ctx.SendError(pdu, remote, remoteAddr, CodeMethodNotAllowed, &UnknownOptionsFilter{})
}

func (ctx *EndpointContext) replyWellKnown(remote PeerAddress, remoteAddr Addr, pdu *PDU) {
	resp := ctx.WellknownResponse(pdu)
	if resp == nil {
		ctx.Config.Logger.Warn("coap: well-known response allocation failed")
		return
	}
	if ctx.Send(remote, remoteAddr, resp) == InvalidTransactionID {
		ctx.Config.Logger.Warn("coap: could not send well-known response")
	}
}
