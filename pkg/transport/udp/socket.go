// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package udp implements coap.Socket over a real *net.UDPConn:
// SO_REUSEADDR, configurable socket buffer sizes, and the address
// conversions the engine needs to move between its own PeerAddress and
// net.Addr.
package udp

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/coapkit/coapd/pkg/coap"
	"golang.org/x/sys/unix"
)

// Socket wraps a *net.UDPConn to satisfy coap.Socket.
type Socket struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket on addr with SO_REUSEADDR set.
func Listen(addr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}
	return &Socket{conn: pc.(*net.UDPConn)}, nil
}

// ReadFrom implements coap.Socket.
func (s *Socket) ReadFrom(buf []byte) (int, coap.Addr, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return n, nil, err
	}
	return n, addr, nil
}

// WriteTo implements coap.Socket.
func (s *Socket) WriteTo(buf []byte, addr coap.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return 0, err
		}
		udpAddr = resolved
	}
	return s.conn.WriteToUDP(buf, udpAddr)
}

// Close implements coap.Socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SetReadBuffer implements coap.Socket.
func (s *Socket) SetReadBuffer(bytes int) error {
	return s.conn.SetReadBuffer(bytes)
}

// SetWriteBuffer implements coap.Socket.
func (s *Socket) SetWriteBuffer(bytes int) error {
	return s.conn.SetWriteBuffer(bytes)
}

// SetReadDeadline implements coap.Socket, letting the event loop bound
// each blocking read so retransmission ticks still run.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// ToPeerAddress converts a net.Addr into the engine's PeerAddress.
// Non-UDP addresses are treated as the link-layer variant keyed by their
// string form, which keeps the conversion total without special-casing
// transports this engine does not speak.
func ToPeerAddress(addr coap.Addr) coap.PeerAddress {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return coap.NewPeerAddressLinkLayer([]byte(addr.String()), 0)
	}
	return coap.NewPeerAddressUDP(udpAddr)
}

// FromPeerAddress is the reverse of ToPeerAddress, reconstructing a
// net.UDPAddr a Socket.WriteTo call can use.
func FromPeerAddress(p coap.PeerAddress) coap.Addr {
	switch p.Family {
	case coap.FamilyIPv4:
		if len(p.Raw) < 6 {
			return &net.UDPAddr{}
		}
		port := int(p.Raw[4])<<8 | int(p.Raw[5])
		return &net.UDPAddr{IP: net.IP(p.Raw[:4]), Port: port}
	default:
		return &net.UDPAddr{IP: net.IP(p.IP), Port: int(p.Port)}
	}
}
