// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "hash/fnv"

// TransactionID is the engine-local 16-bit identifier that matches a
// response to its outstanding request via (peer, token), independent of
// the wire MessageID. Collisions are tolerated; a collision at worst
// matches a response to the wrong outstanding request, which the token
// in the delivered PDU still disambiguates for the host.
type TransactionID uint16

// InvalidTransactionID is the sentinel returned when a transaction could
// not be established (allocation failure, send failure).
const InvalidTransactionID TransactionID = 0xffff

// ComputeTransactionID folds a 4-byte hash of the peer address and token
// into 16 bits by xoring its high and low halves. The same peer+token
// always yields the same ID regardless of MessageID, which is what lets
// a retransmitted request and its original share one send-queue entry.
func ComputeTransactionID(peer PeerAddress, token Token) TransactionID {
	h := fnv.New32a()
	peer.hashInto(h)
	if token.Len() > 0 {
		_, _ = h.Write(token.Bytes())
	}
	sum := h.Sum32()
	hi := uint16(sum >> 16)
	lo := uint16(sum)
	return TransactionID(hi ^ lo)
}
