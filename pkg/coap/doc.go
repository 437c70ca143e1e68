// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package coap implements the CoAP message-layer engine: a single-socket
// UDP dispatcher that provides reliable delivery of confirmable messages
// and URI-keyed resource dispatch, per RFC 7252's predecessor drafts (the
// wire format implemented here uses the 4-bit option-count header field
// and fence-post options, not the extended-option-number encoding RFC 7252
// settled on). Retransmitted requests are not de-duplicated: a request
// received twice is routed, and answered, twice.
//
// # Overview
//
// An EndpointContext owns one UDP socket, a send queue of outstanding
// confirmable messages ordered by retransmission deadline, a receive
// queue of datagrams awaiting dispatch, a resource registry, and the
// bitmap of critical options the host understands. Two entry points
// drive the engine:
//
//	Read(ctx)     drains one datagram into the receive queue
//	Dispatch(ctx) drains the receive queue, routing each message
//
// A third path, driven by a host timer, retransmits confirmable sends
// whose deadline has passed.
//
// # Concurrency
//
// The engine is single-threaded and cooperative: Read, Dispatch, and
// Retransmit must not run concurrently with each other, and a resource
// handler invoked from Dispatch must not call Dispatch recursively. A
// host integrates the engine under its own select/poll loop.
//
// # What this package does not do
//
// PDU option and payload byte encoding is implemented here, since no
// current RFC 7252 library speaks the fence-post draft wire format this
// engine targets. Transport security, block-wise transfer, observe
// subscriptions, multicast, and proxying are out of scope.
package coap
