// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"encoding/binary"
	"hash"
	"net"
)

// AddressFamily discriminates the variants of PeerAddress.
type AddressFamily uint8

const (
	// FamilyIPv4 carries a full IPv4 sockaddr; equality compares every byte.
	FamilyIPv4 AddressFamily = iota
	// FamilyIPv6 carries an address and port; equality ignores flow/scope.
	FamilyIPv6
	// FamilyLinkLayer is the constrained-stack profile (e.g. 802.15.4 short
	// address) carrying an address and port.
	FamilyLinkLayer
)

// PeerAddress is a tagged union over the address families this engine
// can speak to. Equality and hashing differ per variant.
type PeerAddress struct {
	Family AddressFamily

	// Raw holds the full sockaddr bytes for FamilyIPv4 (used verbatim in
	// both equality and hashing).
	Raw []byte

	// IP holds the address bytes for FamilyIPv6 and FamilyLinkLayer.
	IP []byte

	// Port is used by FamilyIPv6 and FamilyLinkLayer.
	Port uint16
}

// NewPeerAddressUDP builds a PeerAddress from a resolved UDP address,
// choosing FamilyIPv4 or FamilyIPv6 based on the address's form.
func NewPeerAddressUDP(addr *net.UDPAddr) PeerAddress {
	if v4 := addr.IP.To4(); v4 != nil {
		raw := make([]byte, 0, len(v4)+2)
		raw = append(raw, v4...)
		portBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(portBytes, uint16(addr.Port))
		raw = append(raw, portBytes...)
		return PeerAddress{Family: FamilyIPv4, Raw: raw}
	}
	ip := make([]byte, len(addr.IP))
	copy(ip, addr.IP)
	return PeerAddress{Family: FamilyIPv6, IP: ip, Port: uint16(addr.Port)}
}

// NewPeerAddressLinkLayer builds the constrained-profile address variant.
func NewPeerAddressLinkLayer(addr []byte, port uint16) PeerAddress {
	ip := make([]byte, len(addr))
	copy(ip, addr)
	return PeerAddress{Family: FamilyLinkLayer, IP: ip, Port: port}
}

// Equal compares per family: the complete sockaddr for IPv4, (address,
// port) only for IPv6 and the link-layer profile.
func (a PeerAddress) Equal(b PeerAddress) bool {
	if a.Family != b.Family {
		return false
	}
	switch a.Family {
	case FamilyIPv4:
		return bytesEqual(a.Raw, b.Raw)
	default:
		return a.Port == b.Port && bytesEqual(a.IP, b.IP)
	}
}

func bytesEqual(x, y []byte) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// hashInto feeds the address bytes into h following the order the
// transaction-ID hasher expects: full sockaddr for IPv4, port-then-address
// for IPv6 and the link-layer profile.
func (a PeerAddress) hashInto(h hash.Hash32) {
	switch a.Family {
	case FamilyIPv4:
		_, _ = h.Write(a.Raw)
	default:
		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], a.Port)
		_, _ = h.Write(portBytes[:])
		_, _ = h.Write(a.IP)
	}
}

// String renders a PeerAddress for logging.
func (a PeerAddress) String() string {
	switch a.Family {
	case FamilyIPv4:
		if len(a.Raw) >= 6 {
			return net.IP(a.Raw[:4]).String()
		}
		return "invalid-ipv4"
	default:
		return net.IP(a.IP).String()
	}
}
