// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"io"
	"log/slog"
	"net"
	"time"
)

// fakeClock is a manually-advanced Clock.
type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

// fixedPRNG always returns the same byte, making timeouts deterministic.
type fixedPRNG byte

func (p fixedPRNG) Byte() byte { return byte(p) }

// scriptedSocket serves queued inbound datagrams and records writes.
type scriptedSocket struct {
	inbound  [][]byte
	from     Addr
	writes   [][]byte
	writeErr error
}

func (s *scriptedSocket) ReadFrom(buf []byte) (int, Addr, error) {
	if len(s.inbound) == 0 {
		return 0, nil, io.EOF
	}
	d := s.inbound[0]
	s.inbound = s.inbound[1:]
	return copy(buf, d), s.from, nil
}

func (s *scriptedSocket) WriteTo(buf []byte, _ Addr) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.writes = append(s.writes, cp)
	return len(buf), nil
}

func (s *scriptedSocket) Close() error                    { return nil }
func (s *scriptedSocket) SetReadBuffer(int) error         { return nil }
func (s *scriptedSocket) SetWriteBuffer(int) error        { return nil }
func (s *scriptedSocket) SetReadDeadline(time.Time) error { return nil }

type fakeRegistry struct {
	resources map[ResourceKey]*Resource
}

func (f *fakeRegistry) Lookup(key ResourceKey) (*Resource, bool) {
	r, ok := f.resources[key]
	return r, ok
}

type fakeRenderer string

func (f fakeRenderer) Render(_ *EndpointContext, buf []byte) (int, error) {
	return copy(buf, string(f)), nil
}

func testAddrConverter(a Addr) PeerAddress {
	return NewPeerAddressUDP(a.(*net.UDPAddr))
}

func testReverseAddrConverter(p PeerAddress) Addr {
	switch p.Family {
	case FamilyIPv4:
		port := int(p.Raw[4])<<8 | int(p.Raw[5])
		return &net.UDPAddr{IP: net.IP(p.Raw[:4]), Port: port}
	default:
		return &net.UDPAddr{IP: net.IP(p.IP), Port: int(p.Port)}
	}
}

func testPeer() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1).To4(), Port: 40001}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEndpoint(sock Socket, clock *fakeClock, cfg EndpointConfig) *EndpointContext {
	cfg.Logger = quietLogger()
	cfg.Clock = clock
	if cfg.PRNG == nil {
		cfg.PRNG = fixedPRNG(0)
	}
	cfg.AddrConverter = testAddrConverter
	cfg.ReverseAddrConverter = testReverseAddrConverter
	return NewEndpointContext(sock, cfg)
}

// buildRequest constructs the wire bytes of a request. Options must be
// given in ascending number order.
func buildRequest(typ MessageType, code Code, messageID uint16, opts []Option, payload []byte) []byte {
	p := NewPDU(64, typ, code, messageID)
	ob := NewOptionBuilder(p)
	for _, o := range opts {
		ob.Add(o.Number, o.Value)
	}
	ob.Finish()
	if len(payload) > 0 {
		p.SetPayload(payload)
	}
	return p.Data
}

// optionValues collects every value of the given option number, in order.
func optionValues(p *PDU, number uint16) [][]byte {
	var vals [][]byte
	p.WalkChecked(func(opt Option) bool {
		if opt.Number == number {
			vals = append(vals, opt.Value)
		}
		return true
	})
	return vals
}
