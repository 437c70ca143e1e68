// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "hash/fnv"

// ResourceKey is a 4-byte hash of a request's URI path option sequence;
// equality is byte-wise.
type ResourceKey [4]byte

// HashURIPath computes the ResourceKey for a sequence of Uri-Path option
// values, in order.
func HashURIPath(segments [][]byte) ResourceKey {
	h := fnv.New32a()
	for _, s := range segments {
		_, _ = h.Write(s)
		_, _ = h.Write([]byte{'/'})
	}
	sum := h.Sum32()
	var k ResourceKey
	k[0] = byte(sum >> 24)
	k[1] = byte(sum >> 16)
	k[2] = byte(sum >> 8)
	k[3] = byte(sum)
	return k
}

// Handler is a per-resource, per-method callback. It is fully
// responsible for sending any reply.
type Handler func(ctx *EndpointContext, res *Resource, remote PeerAddress, pdu *PDU, tid TransactionID)

// Resource owns a handler table indexed by method code (GET=1, POST=2,
// PUT=3, DELETE=4); slots may be nil.
type Resource struct {
	Key      ResourceKey
	Handlers [4]Handler
}

// HandlerFor returns the handler registered for method, if any. Method
// codes are 1-indexed (GET=1..DELETE=4); any other value reports false.
func (r *Resource) HandlerFor(method Code) (Handler, bool) {
	idx := int(method) - 1
	if idx < 0 || idx >= len(r.Handlers) {
		return nil, false
	}
	h := r.Handlers[idx]
	return h, h != nil
}

// ResourceRegistry resolves a ResourceKey to a Resource. The registry
// itself (storage, mutation, link-format rendering of its contents)
// lives outside the engine; only this lookup contract is required.
type ResourceRegistry interface {
	Lookup(key ResourceKey) (*Resource, bool)
}

// WellKnownRenderer renders the resource registry as link-format into
// buf, returning the number of bytes written.
type WellKnownRenderer interface {
	Render(ctx *EndpointContext, buf []byte) (n int, err error)
}

// wellKnownURI is the default discovery path.
const wellKnownURI = ".well-known/core"

// wellKnownKey is a process-lifetime singleton computed lazily on first
// use and cached.
var wellKnownKey = struct {
	computed bool
	key      ResourceKey
}{}

// WellKnownKey returns the cached hash of the well-known discovery path,
// computing it on first call.
func WellKnownKey() ResourceKey {
	if !wellKnownKey.computed {
		wellKnownKey.key = HashURIPath([][]byte{[]byte(wellKnownURI)})
		wellKnownKey.computed = true
	}
	return wellKnownKey.key
}
