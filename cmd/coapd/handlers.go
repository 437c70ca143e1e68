// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"time"

	"github.com/coapkit/coapd/pkg/coap"
	"github.com/coapkit/coapd/pkg/registry"
)

const contentFormatTextPlain = 0

// registerResources populates the registry with the daemon's built-in
// resources. Deployments embedding the engine register their own.
func registerResources(reg *registry.Registry, logger *slog.Logger) {
	timeResource := &coap.Resource{}
	timeResource.Handlers[coap.CodeGET-1] = func(ctx *coap.EndpointContext, _ *coap.Resource, remote coap.PeerAddress, req *coap.PDU, tid coap.TransactionID) {
		logger.Debug("GET /time", slog.String("peer", remote.String()))
		reply(ctx, remote, req, coap.CodeContent, []byte(time.Now().UTC().Format(time.RFC3339)))
	}
	reg.Register("time", timeResource)

	echoResource := &coap.Resource{}
	echo := func(ctx *coap.EndpointContext, _ *coap.Resource, remote coap.PeerAddress, req *coap.PDU, tid coap.TransactionID) {
		logger.Debug("echo", slog.String("peer", remote.String()), slog.Int("bytes", len(req.Payload())))
		reply(ctx, remote, req, coap.CodeContent, req.Payload())
	}
	echoResource.Handlers[coap.CodePOST-1] = echo
	echoResource.Handlers[coap.CodePUT-1] = echo
	reg.Register("echo", echoResource)
}

// reply sends a piggy-backed ACK for confirmable requests, or a NON
// response otherwise, echoing the request's MessageID and Token.
func reply(ctx *coap.EndpointContext, remote coap.PeerAddress, req *coap.PDU, code coap.Code, payload []byte) {
	typ := coap.TypeNonConfirmable
	if req.Type == coap.TypeConfirmable {
		typ = coap.TypeAcknowledgement
	}
	tok := req.Token()

	resp := coap.NewPDU(coap.HeaderSize+tok.Len()+len(payload)+8, typ, code, req.MessageID)
	ob := coap.NewOptionBuilder(resp)
	ob.Add(coap.OptionContentType, []byte{contentFormatTextPlain})
	if tok.Len() > 0 {
		ob.Add(coap.OptionToken, tok.Bytes())
	}
	ob.Finish()
	resp.SetPayload(payload)

	if ctx.Send(remote, ctx.Config.ReverseAddrConverter(remote), resp) == coap.InvalidTransactionID {
		ctx.Config.Logger.Warn("coapd: reply send failed", slog.String("peer", remote.String()))
	}
}
