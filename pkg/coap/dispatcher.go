// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "log/slog"

// Dispatch drains the entire receive queue, routing each message by its
// type. It must not be called recursively (e.g. from within a resource
// Handler) — the engine has no reentrancy protection.
func (ctx *EndpointContext) Dispatch() {
	for {
		rcvd := ctx.ReceiveQueue.PopFront()
		if rcvd == nil {
			return
		}
		ctx.dispatchOne(rcvd)
	}
}

func (ctx *EndpointContext) dispatchOne(rcvd *QueueNode) {
	var sent *QueueNode
	defer func() {
		if sent != nil {
			ctx.Config.Allocator.FreeNode(sent)
		}
		ctx.Config.Allocator.FreeNode(rcvd)
	}()

	pdu := rcvd.PDU
	if pdu.Version != ProtocolVersion {
		ctx.Config.Logger.Debug("coap: dropped packet with unknown version",
			slog.Int("version", int(pdu.Version)))
		ctx.observeDispatch(pdu.Type, "dropped_wrong_version")
		return
	}

	switch pdu.Type {
	case TypeAcknowledgement:
		// Stop retransmission of the matching confirmable send, if any.
		sent = ctx.SendQueue.RemoveByID(rcvd.TransactionID)
		if pdu.Code == 0 {
			// Empty ACK: a separate-response placeholder, nothing to
			// deliver upward.
			ctx.observeDispatch(pdu.Type, "empty_ack")
			return
		}

	case TypeReset:
		// The receiver disliked something we sent; drop the transaction.
		ctx.Config.Logger.Warn("coap: got RST",
			slog.Int("message_id", int(pdu.MessageID)))
		sent = ctx.SendQueue.RemoveByID(rcvd.TransactionID)

	case TypeNonConfirmable:
		filter := &UnknownOptionsFilter{}
		if !CheckCritical(ctx.KnownOptions, pdu, filter) {
			// RFC 7252 forbids answering a NON with RST here; drop it.
			ctx.observeCriticalRejection("NON")
			ctx.observeDispatch(pdu.Type, "bad_option")
			return
		}

	case TypeConfirmable:
		filter := &UnknownOptionsFilter{}
		if !CheckCritical(ctx.KnownOptions, pdu, filter) {
			ctx.observeCriticalRejection("CON")
			ctx.observeDispatch(pdu.Type, "bad_option")
			if ctx.SendError(pdu, rcvd.Remote, ctx.Config.ReverseAddrConverter(rcvd.Remote), CodeBadOption, filter) == InvalidTransactionID {
				ctx.Config.Logger.Warn("coap: cannot send Bad Option response")
			}
			return
		}
	}

	if ctx.Config.LocalDelivery != nil && !ctx.Config.LocalDelivery(ctx, rcvd) {
		ctx.observeDispatch(pdu.Type, "not_local")
		return
	}

	switch {
	case pdu.Code >= CodeGET && pdu.Code <= CodeDELETE:
		ctx.observeMessage(pdu.Code, "inbound")
		ctx.observeDispatch(pdu.Type, "routed")
		ctx.Route(rcvd.Remote, ctx.Config.ReverseAddrConverter(rcvd.Remote), pdu, rcvd.TransactionID)
	case uint8(pdu.Code) >= 64:
		ctx.observeMessage(pdu.Code, "inbound")
		ctx.observeDispatch(pdu.Type, "response")
		if pdu.Type == TypeConfirmable {
			// A separate CON response must be acknowledged before
			// delivery, or the peer keeps retransmitting it.
			ack := NewPDU(HeaderSize, TypeAcknowledgement, 0, pdu.MessageID)
			if ctx.Send(rcvd.Remote, ctx.Config.ReverseAddrConverter(rcvd.Remote), ack) == InvalidTransactionID {
				ctx.Config.Logger.Warn("coap: cannot ack separate response")
			}
		}
		var sentPDU *PDU
		if sent != nil {
			sentPDU = sent.PDU
		}
		if ctx.Config.ResponseHandler != nil {
			ctx.Config.ResponseHandler(ctx, rcvd.Remote, sentPDU, pdu, rcvd.TransactionID)
		}
	default:
		ctx.Config.Logger.Debug("coap: dropped message with invalid code",
			slog.Int("code", int(pdu.Code)))
		ctx.observeDispatch(pdu.Type, "dropped_code")
	}
}
