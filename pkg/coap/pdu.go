// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"github.com/plgd-dev/go-coap/v3/message/codes"

	cerrors "github.com/coapkit/coapd/pkg/errors"
)

// Code aliases the class.detail response/request code space. The numbering
// (GET=1, 2.05 Content=69, 4.02 BadOption=130, ...) is identical between
// the legacy draft this engine's wire format implements and RFC 7252, so
// the constants are borrowed directly; the TLV option layer below is not.
type Code = codes.Code

const (
	CodeGET              = codes.GET
	CodePOST             = codes.POST
	CodePUT              = codes.PUT
	CodeDELETE           = codes.DELETE
	CodeContent          = codes.Content
	CodeBadOption        = codes.BadOption
	CodeNotFound         = codes.NotFound
	CodeMethodNotAllowed = codes.MethodNotAllowed
)

// MessageType is the CoAP header's 2-bit type field.
type MessageType uint8

const (
	TypeConfirmable MessageType = iota
	TypeNonConfirmable
	TypeAcknowledgement
	TypeReset
)

// ProtocolVersion is the only CoAP version this engine accepts.
const ProtocolVersion uint8 = 1

// HeaderSize is the fixed 4-byte CoAP header: version(2) type(2)
// option_count(4) code(8) message_id(16).
const HeaderSize = 4

var (
	// ErrShortFrame is returned when a datagram is smaller than HeaderSize.
	ErrShortFrame = cerrors.ErrShortFrame
	// ErrProtocolVersion is returned when the header's version field is
	// not ProtocolVersion.
	ErrProtocolVersion = cerrors.ErrProtocolVersion
)

// PDU is an owned byte buffer plus the parsed header fields, an options
// cursor, and a payload cursor. It is created on receive or by a sender
// and lives inside its enclosing QueueNode until delivered or deleted;
// there is no separate free step in Go, the GC reclaims it once no
// QueueNode references it.
type PDU struct {
	Data []byte

	Version     uint8
	Type        MessageType
	OptionCount uint8
	Code        Code
	MessageID   uint16

	// optionsStart is the header-relative offset of the first option byte.
	optionsStart int
	// dataStart is the offset into Data where the payload begins,
	// computed by stepping past every declared option, fence-posts
	// included.
	dataStart int
}

// NewPDU allocates a PDU backed by a buffer sized for size bytes, with
// the header pre-filled. size is a capacity hint; options and payload
// appended later may still grow the buffer.
func NewPDU(size int, typ MessageType, code Code, messageID uint16) *PDU {
	p := &PDU{
		Data:         make([]byte, HeaderSize, size),
		Version:      ProtocolVersion,
		Type:         typ,
		Code:         code,
		MessageID:    messageID,
		optionsStart: HeaderSize,
		dataStart:    HeaderSize,
	}
	p.writeHeader()
	return p
}

func (p *PDU) writeHeader() {
	p.Data[0] = (p.Version << 6) | (uint8(p.Type) << 4) | (p.OptionCount & 0x0f)
	p.Data[1] = uint8(p.Code)
	p.Data[2] = byte(p.MessageID >> 8)
	p.Data[3] = byte(p.MessageID)
}

// ParsePDU decodes the fixed header from a received datagram and locates
// the payload boundary by stepping past the declared option count.
// Semantic option iteration is WalkChecked's job.
func ParsePDU(raw []byte) (*PDU, error) {
	if len(raw) < HeaderSize {
		return nil, ErrShortFrame
	}
	version := raw[0] >> 6
	if version != ProtocolVersion {
		return nil, ErrProtocolVersion
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	p := &PDU{
		Data:         data,
		Version:      version,
		Type:         MessageType((raw[0] >> 4) & 0x3),
		OptionCount:  raw[0] & 0x0f,
		Code:         Code(raw[1]),
		MessageID:    uint16(raw[2])<<8 | uint16(raw[3]),
		optionsStart: HeaderSize,
	}
	p.dataStart = p.computeDataStart()
	return p, nil
}

// Payload returns the payload bytes, valid only after the unchecked walk
// has located dataStart (ParsePDU does this automatically).
func (p *PDU) Payload() []byte {
	if p.dataStart > len(p.Data) {
		return nil
	}
	return p.Data[p.dataStart:]
}

// SetPayload appends payload bytes after any options already written.
// Callers must finish adding options before calling SetPayload.
func (p *PDU) SetPayload(payload []byte) {
	p.dataStart = len(p.Data)
	p.Data = append(p.Data, payload...)
}

// computeDataStart walks all OptionCount options unconditionally,
// including fence-posts, to find where options end and payload begins.
// The fence-post-skipping walker must not be used here: it would stop
// short of the true payload boundary when a fence-post is the last
// option.
func (p *PDU) computeDataStart() int {
	off := p.optionsStart
	for i := uint8(0); i < p.OptionCount; i++ {
		if off >= len(p.Data) {
			return off
		}
		_, length, headerLen := decodeOptionHeader(p.Data[off:])
		off += headerLen
		if off+length > len(p.Data) {
			return len(p.Data)
		}
		off += length
	}
	return off
}

// decodeOptionHeader parses one option's delta/length nibbles (plus any
// extended-length byte) and reports how many header bytes it consumed.
func decodeOptionHeader(b []byte) (delta uint8, length int, headerLen int) {
	if len(b) == 0 {
		return 0, 0, 0
	}
	delta = b[0] >> 4
	lenNibble := b[0] & 0x0f
	headerLen = 1
	length = int(lenNibble)
	if lenNibble == 15 {
		if len(b) < 2 {
			return delta, 0, len(b)
		}
		length = int(lenNibble) + int(b[1])
		headerLen = 2
	}
	return delta, length, headerLen
}

// WalkChecked iterates the PDU's options in ascending number order,
// skipping fence-post markers, and invokes fn for each semantic option.
// Iteration stops early if fn returns false.
func (p *PDU) WalkChecked(fn func(Option) bool) {
	p.walk(func(opt Option) bool {
		if opt.IsFencePost() {
			return true
		}
		return fn(opt)
	})
}

// WalkUnchecked iterates every decoded entry, fence-posts included.
func (p *PDU) WalkUnchecked(fn func(Option) bool) {
	p.walk(fn)
}

func (p *PDU) walk(fn func(Option) bool) {
	off := p.optionsStart
	number := uint16(0)
	for i := uint8(0); i < p.OptionCount; i++ {
		if off >= len(p.Data) {
			return
		}
		delta, length, headerLen := decodeOptionHeader(p.Data[off:])
		off += headerLen
		number += uint16(delta)
		if off+length > len(p.Data) {
			return
		}
		value := p.Data[off : off+length]
		off += length
		if !fn(Option{Number: number, Value: value}) {
			return
		}
	}
}

// OptionBuilder accumulates options onto a PDU being constructed, folding
// in a fence-post at every multiple of 14 that an option's delta crosses.
type OptionBuilder struct {
	pdu        *PDU
	lastNumber uint16
}

// NewOptionBuilder starts building options on p, which must have no
// options written yet.
func NewOptionBuilder(p *PDU) *OptionBuilder {
	return &OptionBuilder{pdu: p}
}

// Add appends one option. Options must be added in ascending number order.
// Fence-post markers are inserted for every multiple of 14 strictly
// between the previous option's number and this one, keeping every
// encoded delta within the 4-bit nibble.
func (b *OptionBuilder) Add(number uint16, value []byte) {
	for {
		next := ((b.lastNumber / fencePostInterval) + 1) * fencePostInterval
		if next >= number {
			break
		}
		b.appendRaw(next, nil)
		b.lastNumber = next
		b.pdu.OptionCount++
	}
	b.appendRaw(number, value)
	b.lastNumber = number
	b.pdu.OptionCount++
}

func (b *OptionBuilder) appendRaw(number uint16, value []byte) {
	delta := number - b.lastNumber
	length := len(value)
	if delta > 14 {
		// Caller is expected to have inserted fence-posts; clamp to avoid
		// corrupting the stream rather than panicking on a host bug.
		delta = 14
	}
	if length < 15 {
		b.pdu.Data = append(b.pdu.Data, (uint8(delta)<<4)|uint8(length))
	} else {
		b.pdu.Data = append(b.pdu.Data, (uint8(delta)<<4)|0x0f, uint8(length-15))
	}
	b.pdu.Data = append(b.pdu.Data, value...)
}

// Finish must be called after the last Add and before SetPayload/use,
// to fix up the header's option-count nibble now that it is known. When
// OptionCount exceeds 15, the caller's wire format cannot represent it
// in the 4-bit field; the truncated value is a host-side bug, not
// something this engine silently repairs.
func (b *OptionBuilder) Finish() {
	b.pdu.writeHeader()
}
