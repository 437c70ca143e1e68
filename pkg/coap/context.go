// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// Allocator supplies and reclaims QueueNodes. The general-purpose default
// allocates from the Go heap; constrained hosts swap in a fixed-capacity
// pool so allocation failure becomes a first-class, non-fatal outcome
// instead of relying on the host's memory pressure.
type Allocator interface {
	AllocNode() (*QueueNode, bool)
	FreeNode(*QueueNode)
}

// heapAllocator is the general-purpose default: unbounded, never fails.
type heapAllocator struct{}

func (heapAllocator) AllocNode() (*QueueNode, bool) { return &QueueNode{}, true }
func (heapAllocator) FreeNode(*QueueNode)           {}

// ResponseHandler is invoked on received responses. sent is the PDU of
// the matching outstanding confirmable send, or nil when the response
// could not be matched (e.g. a NON response, or an ACK that raced with
// retransmission exhaustion).
type ResponseHandler func(ctx *EndpointContext, remote PeerAddress, sent *PDU, recv *PDU, tid TransactionID)

// CircuitBreaker guards the actual socket write in the send path.
// pkg/breaker's Breaker satisfies this; nil means "no breaker, write
// directly".
type CircuitBreaker interface {
	Call(func() error) error
}

// RateLimiter guards the reader before a datagram becomes a receive-queue
// node. pkg/ratelimit's Limiter satisfies this; nil means "unlimited".
type RateLimiter interface {
	Allow(peer string) bool
}

// Instrumentation receives the counters the engine increments on its hot
// paths. pkg/metrics provides a Prometheus-backed implementation; nil
// disables instrumentation entirely.
type Instrumentation interface {
	Dispatched(msgType, disposition string)
	Retransmission(outcome string)
	CriticalOptionRejected(msgType string)
	AllocationFailure(queue string)
	RateLimited()
	Message(code, direction string)
}

// EndpointConfig carries the endpoint's tunables and collaborator hooks.
type EndpointConfig struct {
	MaxRetransmit   int
	ResponseTimeout int64 // ticks
	TicksPerSecond  int64
	MaxPDUSize      int
	Logger          *slog.Logger
	Clock           Clock
	PRNG            PRNG
	Allocator       Allocator
	Registry        ResourceRegistry
	WellKnown       WellKnownRenderer
	ResponseHandler ResponseHandler
	Breaker         CircuitBreaker
	RateLimiter     RateLimiter
	Instrumentation Instrumentation

	// LocalDelivery, when set, decides whether a dispatched message is
	// handled by this endpoint at all. nil accepts everything, which is
	// the behavior a plain server/client endpoint wants; a host fronting
	// several endpoints on one socket can use it to claim only its own
	// traffic.
	LocalDelivery func(*EndpointContext, *QueueNode) bool

	// AddrConverter turns a transport Addr into the PeerAddress the
	// engine hashes and compares. Required; pkg/transport/udp supplies
	// one for UDP sockets.
	AddrConverter func(Addr) PeerAddress

	// ReverseAddrConverter turns a PeerAddress back into the transport
	// Addr a Socket.WriteTo call needs. Required for any reply path
	// (error responses, well-known responses, retransmission).
	ReverseAddrConverter func(PeerAddress) Addr
}

const (
	DefaultMaxRetransmit          = 4
	DefaultResponseTimeoutSeconds = 2
	DefaultMaxPDUSize             = 1152
)

func (c *EndpointConfig) setDefaults() {
	if c.MaxRetransmit == 0 {
		c.MaxRetransmit = DefaultMaxRetransmit
	}
	if c.TicksPerSecond == 0 {
		c.TicksPerSecond = DefaultTicksPerSecond
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeoutSeconds * c.TicksPerSecond
	}
	if c.MaxPDUSize == 0 {
		c.MaxPDUSize = DefaultMaxPDUSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = NewSystemClock(c.TicksPerSecond)
	}
	if c.PRNG == nil {
		c.PRNG = NewPRNG(int64(c.TicksPerSecond))
	}
	if c.Allocator == nil {
		c.Allocator = heapAllocator{}
	}
}

// EndpointContext exclusively owns the socket, send queue, receive
// queue, resource registry reference, known-options bitmap, and the
// response callback. Every engine operation is a method on it. All queue
// mutation happens from the host's single event-loop goroutine; the
// engine itself takes no locks.
type EndpointContext struct {
	Socket Socket
	Config EndpointConfig

	SendQueue    Queue
	ReceiveQueue Queue

	KnownOptions *KnownOptionsBitmap

	readBufPool sync.Pool
	closed      atomic.Bool
}

// NewEndpointContext wires an endpoint around an already-open socket:
// the known-options bitmap pre-seeded with the options every endpoint
// must understand, and config defaults filled in. Opening and binding
// the socket is the host's job (pkg/transport/udp for real UDP).
func NewEndpointContext(sock Socket, cfg EndpointConfig) *EndpointContext {
	cfg.setDefaults()
	ctx := &EndpointContext{
		Socket:       sock,
		Config:       cfg,
		KnownOptions: NewKnownOptionsBitmap(),
	}
	ctx.readBufPool.New = func() any {
		return make([]byte, ctx.Config.MaxPDUSize)
	}
	return ctx
}

// CanExit reports whether the endpoint has quiesced: no confirmable
// sends awaiting acknowledgement and no received messages awaiting
// dispatch.
func (ctx *EndpointContext) CanExit() bool {
	return ctx.SendQueue.Empty() && ctx.ReceiveQueue.Empty()
}

// Closed reports whether Close has run.
func (ctx *EndpointContext) Closed() bool {
	return ctx.closed.Load()
}

// Close drains both queues and closes the socket. Safe to call more
// than once.
func (ctx *EndpointContext) Close() error {
	if ctx.closed.Swap(true) {
		return nil
	}
	ctx.SendQueue.DeleteAll()
	ctx.ReceiveQueue.DeleteAll()
	return ctx.Socket.Close()
}

func (ctx *EndpointContext) observeDispatch(t MessageType, disposition string) {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.Dispatched(t.String(), disposition)
	}
}

func (ctx *EndpointContext) observeRetransmission(outcome string) {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.Retransmission(outcome)
	}
}

func (ctx *EndpointContext) observeCriticalRejection(msgType string) {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.CriticalOptionRejected(msgType)
	}
}

func (ctx *EndpointContext) observeAllocationFailure(queue string) {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.AllocationFailure(queue)
	}
}

func (ctx *EndpointContext) observeRateLimited() {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.RateLimited()
	}
}

func (ctx *EndpointContext) observeMessage(code Code, direction string) {
	if ctx.Config.Instrumentation != nil {
		ctx.Config.Instrumentation.Message(strconv.Itoa(int(code)), direction)
	}
}

// String names a MessageType for logs and metric labels.
func (t MessageType) String() string {
	switch t {
	case TypeConfirmable:
		return "CON"
	case TypeNonConfirmable:
		return "NON"
	case TypeAcknowledgement:
		return "ACK"
	case TypeReset:
		return "RST"
	default:
		return "unknown"
	}
}
