// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"log/slog"

	cerrors "github.com/coapkit/coapd/pkg/errors"
)

// Read drains one datagram from the socket, validates it enough to be
// worth queuing, and enqueues a receive node. It never dispatches; that
// is Dispatch's job. Returns false on any rejection (read failure, short
// frame, wrong version, rate-limited, allocation failure) and true once
// a node has been queued.
func (ctx *EndpointContext) Read() bool {
	buf := ctx.readBufPool.Get().([]byte)
	defer ctx.readBufPool.Put(buf) //nolint:staticcheck // buf is copied into the PDU before reuse
	n, addr, err := ctx.Socket.ReadFrom(buf)
	if err != nil {
		ctx.Config.Logger.Debug("coap: read failed", slog.String("error", err.Error()))
		return false
	}
	if n < HeaderSize {
		return false
	}

	remote := ctx.Config.AddrConverter(addr)

	if ctx.Config.RateLimiter != nil && !ctx.Config.RateLimiter.Allow(remote.String()) {
		ctx.Config.Logger.Debug("coap: datagram dropped by rate limiter", slog.String("peer", remote.String()))
		ctx.observeRateLimited()
		return false
	}

	pdu, err := ParsePDU(buf[:n])
	if err != nil {
		err = cerrors.New("read", "parse", remote.String(), err)
		ctx.Config.Logger.Debug("coap: dropping datagram", slog.String("error", err.Error()))
		return false
	}

	node, ok := ctx.Config.Allocator.AllocNode()
	if !ok {
		ctx.Config.Logger.Warn("coap: receive node allocation failed")
		ctx.observeAllocationFailure("receive")
		return false
	}

	node.PDU = pdu
	node.Remote = remote
	node.TransactionID = ComputeTransactionID(remote, requestToken(pdu))
	node.T = ctx.Config.Clock.Now()

	ctx.ReceiveQueue.Insert(node, receiveArrivalOrder)
	return true
}

// receiveArrivalOrder keeps the receive queue in arrival order: Read
// always stamps T with the current tick and inserts immediately, so
// strict less-than on T combined with Queue.Insert's tail-append on ties
// preserves FIFO order for datagrams read in the same tick.
func receiveArrivalOrder(a, b *QueueNode) bool {
	return a.T < b.T
}
