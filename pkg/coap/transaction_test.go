// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"net"
	"testing"
)

func TestTransactionIDIgnoresMessageID(t *testing.T) {
	peer := NewPeerAddressUDP(testPeer())
	tok := NewToken([]byte{0x42})

	a := ComputeTransactionID(peer, tok)
	b := ComputeTransactionID(peer, tok)
	if a != b {
		t.Errorf("same peer+token produced different ids: %d vs %d", a, b)
	}

	// The wire MessageID is not an input at all; two PDUs to the same
	// peer with the same token share an id regardless of it.
	p1, err := ParsePDU(buildRequest(TypeConfirmable, CodeGET, 0x1111, []Option{{Number: OptionToken, Value: []byte{0x42}}}, nil))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := ParsePDU(buildRequest(TypeConfirmable, CodeGET, 0x2222, []Option{{Number: OptionToken, Value: []byte{0x42}}}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if ComputeTransactionID(peer, p1.Token()) != ComputeTransactionID(peer, p2.Token()) {
		t.Error("different MessageIDs changed the transaction id")
	}
}

func TestTransactionIDVariesWithTokenAndPeer(t *testing.T) {
	peer := NewPeerAddressUDP(testPeer())
	other := NewPeerAddressUDP(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 2).To4(), Port: 40001})

	base := ComputeTransactionID(peer, NewToken([]byte{0x42}))
	if ComputeTransactionID(peer, NewToken([]byte{0x43})) == base {
		t.Error("different tokens should (almost always) produce different ids")
	}
	if ComputeTransactionID(other, NewToken([]byte{0x42})) == base {
		t.Error("different peers should (almost always) produce different ids")
	}
}

func TestPeerAddressEquality(t *testing.T) {
	v4a := NewPeerAddressUDP(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1).To4(), Port: 5683})
	v4b := NewPeerAddressUDP(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1).To4(), Port: 5683})
	v4c := NewPeerAddressUDP(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1).To4(), Port: 5684})
	if !v4a.Equal(v4b) {
		t.Error("identical IPv4 sockaddrs should be equal")
	}
	if v4a.Equal(v4c) {
		t.Error("IPv4 equality must include the port bytes")
	}

	ip6 := net.ParseIP("2001:db8::1")
	v6a := NewPeerAddressUDP(&net.UDPAddr{IP: ip6, Port: 5683})
	v6b := NewPeerAddressUDP(&net.UDPAddr{IP: ip6, Port: 5683, Zone: "eth0"})
	v6c := NewPeerAddressUDP(&net.UDPAddr{IP: ip6, Port: 9999})
	if !v6a.Equal(v6b) {
		t.Error("IPv6 equality is (address, port) only; the zone must not matter")
	}
	if v6a.Equal(v6c) {
		t.Error("IPv6 equality must include the port")
	}

	ll := NewPeerAddressLinkLayer([]byte{0xde, 0xad}, 7)
	llSame := NewPeerAddressLinkLayer([]byte{0xde, 0xad}, 7)
	llOther := NewPeerAddressLinkLayer([]byte{0xde, 0xad}, 8)
	if !ll.Equal(llSame) || ll.Equal(llOther) {
		t.Error("link-layer equality is (address, port)")
	}
	if ll.Equal(v4a) {
		t.Error("different families are never equal")
	}
}

func TestTokenTruncationAndEquality(t *testing.T) {
	long := NewToken([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if long.Len() != MaxTokenLength {
		t.Errorf("token length = %d, want capped at %d", long.Len(), MaxTokenLength)
	}

	a := NewToken([]byte{0x01, 0x02})
	b := NewToken([]byte{0x01, 0x02})
	c := NewToken([]byte{0x01})
	if !a.Equal(b) {
		t.Error("equal tokens reported unequal")
	}
	if a.Equal(c) {
		t.Error("prefix token reported equal")
	}
}
