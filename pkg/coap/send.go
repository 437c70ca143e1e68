// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"log/slog"

	cerrors "github.com/coapkit/coapd/pkg/errors"
)

// Send transmits pdu unconfirmed: a single UDP write with no queue entry
// behind it, the PDU considered spent afterward regardless of outcome.
// Returns the transaction id, or InvalidTransactionID if the write
// failed.
func (ctx *EndpointContext) Send(dst PeerAddress, dstAddr Addr, pdu *PDU) TransactionID {
	ctx.observeMessage(pdu.Code, "outbound")
	if _, err := ctx.writeThroughBreaker(pdu.Data, dstAddr); err != nil {
		err = cerrors.New("send", "transmit", dst.String(), err)
		ctx.Config.Logger.Warn("coap: send failed", slog.String("error", err.Error()))
		return InvalidTransactionID
	}
	return ComputeTransactionID(dst, requestToken(pdu))
}

// SendError builds an error response for request via NewErrorResponse
// and sends it unconfirmed. On allocation failure nothing goes out and
// the returned id is invalid.
func (ctx *EndpointContext) SendError(request *PDU, dst PeerAddress, dstAddr Addr, code Code, filter *UnknownOptionsFilter) TransactionID {
	resp := ctx.NewErrorResponse(request, code, filter)
	if resp == nil {
		return InvalidTransactionID
	}
	return ctx.Send(dst, dstAddr, resp)
}
