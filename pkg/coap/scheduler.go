// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"log/slog"

	cerrors "github.com/coapkit/coapd/pkg/errors"
)

// SendConfirmed transmits a confirmable PDU and schedules it for
// retransmission: allocate a node, compute the jittered ACK timeout
// (RFC 7252 §4.2's randomized initial timeout), insert into the send
// queue ordered by deadline, and transmit once. The node retains
// ownership of pdu until an ACK or RST arrives or the retry budget is
// exhausted; the wire-level write here does not discard it.
func (ctx *EndpointContext) SendConfirmed(dst PeerAddress, dstAddr Addr, pdu *PDU) TransactionID {
	node, ok := ctx.Config.Allocator.AllocNode()
	if !ok {
		ctx.Config.Logger.Warn("coap: node allocation failed", slog.String("stage", "send_confirmed"))
		ctx.observeAllocationFailure("send")
		return InvalidTransactionID
	}

	jitter := int64(ctx.Config.PRNG.Byte())
	timeout := ctx.Config.ResponseTimeout + (ctx.Config.ResponseTimeout/2)*jitter/256

	tid := ComputeTransactionID(dst, requestToken(pdu))

	node.PDU = pdu
	node.T = ctx.Config.Clock.Now() + timeout
	node.BaseTimeout = timeout
	node.RetransmitCount = 0
	node.TransactionID = tid
	node.Remote = dst

	ctx.SendQueue.Insert(node, ByScheduledTick)

	ctx.observeMessage(pdu.Code, "outbound")
	if _, err := ctx.writeThroughBreaker(pdu.Data, dstAddr); err != nil {
		// Node stays scheduled; the next tick retries the write.
		err = cerrors.New("send_confirmed", "transmit", dst.String(), err)
		ctx.Config.Logger.Warn("coap: confirmed send failed",
			slog.String("error", err.Error()))
	}
	return tid
}

// Retransmit re-sends an expired confirmable node, doubling its timeout,
// or gives up once MaxRetransmit attempts have been made. On exhaustion
// the node is released and InvalidTransactionID returned; the response
// callback will simply never fire for that transaction.
func (ctx *EndpointContext) Retransmit(node *QueueNode, dstAddr Addr) TransactionID {
	if node.RetransmitCount >= ctx.Config.MaxRetransmit {
		ctx.Config.Logger.Debug("coap: retransmission exhausted",
			slog.Int("transaction_id", int(node.TransactionID)))
		ctx.observeRetransmission("exhausted")
		ctx.Config.Allocator.FreeNode(node)
		return InvalidTransactionID
	}

	node.RetransmitCount++
	node.T += node.BaseTimeout << uint(node.RetransmitCount)
	ctx.SendQueue.Insert(node, ByScheduledTick)

	ctx.observeRetransmission("rescheduled")
	if _, err := ctx.writeThroughBreaker(node.PDU.Data, dstAddr); err != nil {
		err = cerrors.New("retransmit", "transmit", node.Remote.String(), err)
		ctx.Config.Logger.Warn("coap: retransmit send failed",
			slog.String("error", err.Error()))
	}
	return node.TransactionID
}

// Tick drains every send-queue node whose deadline has passed, calling
// Retransmit on each. Hosts arm their timer against PeekFront().T.
func (ctx *EndpointContext) Tick() {
	now := ctx.Config.Clock.Now()
	for {
		head := ctx.SendQueue.PeekFront()
		if head == nil || head.T > now {
			return
		}
		ctx.SendQueue.PopFront()
		ctx.Retransmit(head, ctx.Config.ReverseAddrConverter(head.Remote))
	}
}

// writeThroughBreaker performs the raw socket write, routed through the
// circuit breaker when one is configured.
func (ctx *EndpointContext) writeThroughBreaker(data []byte, dst Addr) (int, error) {
	if ctx.Config.Breaker == nil {
		return ctx.Socket.WriteTo(data, dst)
	}
	var n int
	err := ctx.Config.Breaker.Call(func() error {
		var werr error
		n, werr = ctx.Socket.WriteTo(data, dst)
		return werr
	})
	return n, err
}
