// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the engine's error taxonomy: the design-level
// error kinds from the propagation policy (allocation failure, protocol
// violation, unknown critical option, resource-not-found, send failure,
// retransmission exhaustion) expressed as sentinel values plus a
// wrapping type that carries the operation, stage, and peer they
// occurred against. None of this is surfaced to the wire; it exists for
// logging and metrics context only.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy.
var (
	// ErrAllocation indicates a PDU or QueueNode could not be allocated.
	ErrAllocation = errors.New("coap: allocation failed")

	// ErrProtocolVersion indicates a message's header version field was
	// not the supported CoAP version.
	ErrProtocolVersion = errors.New("coap: unsupported protocol version")

	// ErrShortFrame indicates a datagram was too small to hold a header.
	ErrShortFrame = errors.New("coap: frame shorter than header")

	// ErrUnknownCriticalOption indicates a critical option the context
	// does not recognize was present in a request.
	ErrUnknownCriticalOption = errors.New("coap: unknown critical option")

	// ErrResourceNotFound indicates no resource matched the request URI.
	ErrResourceNotFound = errors.New("coap: resource not found")

	// ErrMethodNotAllowed indicates a resource exists but has no handler
	// for the requested method.
	ErrMethodNotAllowed = errors.New("coap: method not allowed")

	// ErrSendFailed indicates a socket write failed.
	ErrSendFailed = errors.New("coap: send failed")

	// ErrRetransmitExhausted indicates a confirmable send was abandoned
	// after exceeding its retry budget with no ACK or RST observed.
	ErrRetransmitExhausted = errors.New("coap: retransmission exhausted")
)

// CoAPError wraps an underlying error with the operation, lifecycle
// stage, and peer it occurred against, for structured logging.
type CoAPError struct {
	Op    string // operation, e.g. "read", "dispatch", "send_confirmed"
	Stage string // lifecycle stage, e.g. "validate", "route", "transmit"
	Peer  string // remote peer address, if known
	Err   error
}

// Error implements the error interface.
func (e *CoAPError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("coap %s/%s peer=%s: %v", e.Op, e.Stage, e.Peer, e.Err)
	}
	return fmt.Sprintf("coap %s/%s: %v", e.Op, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *CoAPError) Unwrap() error {
	return e.Err
}

// New wraps err with operation, stage, and peer context. Returns nil if
// err is nil.
func New(op, stage, peer string, err error) error {
	if err == nil {
		return nil
	}
	return &CoAPError{Op: op, Stage: stage, Peer: peer, Err: err}
}

// Wrap adds a message to err without the full CoAPError structure, for
// contexts without an identifiable peer or stage.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
