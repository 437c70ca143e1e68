// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"bytes"
	"testing"
)

func TestParsePDURejectsShortFrame(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x40}, {0x40, 0x01}, {0x40, 0x01, 0x12}} {
		if _, err := ParsePDU(raw); err != ErrShortFrame {
			t.Errorf("ParsePDU(%v) err = %v, want ErrShortFrame", raw, err)
		}
	}
}

func TestParsePDURejectsWrongVersion(t *testing.T) {
	raw := buildRequest(TypeConfirmable, CodeGET, 1, nil, nil)
	raw[0] = (raw[0] &^ 0xc0) | (2 << 6) // version 2
	if _, err := ParsePDU(raw); err != ErrProtocolVersion {
		t.Errorf("err = %v, want ErrProtocolVersion", err)
	}
}

func TestParsePDUHeaderFields(t *testing.T) {
	raw := buildRequest(TypeAcknowledgement, CodeContent, 0x1234, nil, nil)
	p, err := ParsePDU(raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != ProtocolVersion {
		t.Errorf("Version = %d", p.Version)
	}
	if p.Type != TypeAcknowledgement {
		t.Errorf("Type = %v", p.Type)
	}
	if p.Code != CodeContent {
		t.Errorf("Code = %v", p.Code)
	}
	if p.MessageID != 0x1234 {
		t.Errorf("MessageID = %#x", p.MessageID)
	}
}

// TestPayloadBoundary checks that a parsed PDU's payload starts exactly
// after the declared options for every option count, including zero and
// counts whose encoding straddles a fence-post.
func TestPayloadBoundary(t *testing.T) {
	payload := []byte("the payload")

	cases := []struct {
		name string
		opts []Option
	}{
		{"no options", nil},
		{"one option", []Option{{Number: OptionURIPath, Value: []byte("a")}}},
		{"several options", []Option{
			{Number: OptionContentType, Value: []byte{0}},
			{Number: OptionURIPath, Value: []byte("a")},
			{Number: OptionToken, Value: []byte{0x42}},
		}},
		{"straddling a fence-post", []Option{
			{Number: OptionToken, Value: []byte{0x42}},
			{Number: 17, Value: []byte{0x01}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := buildRequest(TypeConfirmable, CodePOST, 7, tc.opts, payload)
			p, err := ParsePDU(raw)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(p.Payload(), payload) {
				t.Errorf("Payload = %q, want %q", p.Payload(), payload)
			}
		})
	}
}

// TestPayloadBoundaryTrailingFencePost hand-crafts a datagram whose last
// declared option is a fence-post. The payload locator must step past it
// too; the fence-post-skipping walker would place the payload start too
// early here.
func TestPayloadBoundaryTrailingFencePost(t *testing.T) {
	raw := []byte{
		0x42, // version 1, CON, option count 2
		byte(CodePOST),
		0x00, 0x07, // message id
		0x91, 'a', // option 9 (Uri-Path), length 1
		0x50,     // delta 5 -> option 14 (fence-post), length 0
		'h', 'i', // payload
	}
	p, err := ParsePDU(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Payload(), []byte("hi")) {
		t.Errorf("Payload = %q, want %q", p.Payload(), "hi")
	}
}

func TestWalkCheckedSkipsFencePosts(t *testing.T) {
	raw := buildRequest(TypeConfirmable, CodeGET, 1, []Option{
		{Number: OptionToken, Value: []byte{0x42}},
		{Number: 17, Value: []byte{0x01}},
	}, nil)
	p, err := ParsePDU(raw)
	if err != nil {
		t.Fatal(err)
	}

	var checked, unchecked []uint16
	p.WalkChecked(func(o Option) bool {
		checked = append(checked, o.Number)
		return true
	})
	p.WalkUnchecked(func(o Option) bool {
		unchecked = append(unchecked, o.Number)
		return true
	})

	wantChecked := []uint16{OptionToken, 17}
	wantUnchecked := []uint16{OptionToken, 14, 17}
	if len(checked) != len(wantChecked) || checked[0] != wantChecked[0] || checked[1] != wantChecked[1] {
		t.Errorf("checked walk = %v, want %v", checked, wantChecked)
	}
	if len(unchecked) != len(wantUnchecked) || unchecked[1] != 14 {
		t.Errorf("unchecked walk = %v, want %v", unchecked, wantUnchecked)
	}
}

func TestOptionBuilderInsertsFencePosts(t *testing.T) {
	p := NewPDU(64, TypeConfirmable, CodeGET, 1)
	ob := NewOptionBuilder(p)
	ob.Add(OptionContentType, []byte{0})
	ob.Add(29, []byte{0xaa}) // forces fence-posts at 14 and 28
	ob.Finish()

	if p.OptionCount != 4 {
		t.Fatalf("OptionCount = %d, want 4 (2 semantic + 2 fence-posts)", p.OptionCount)
	}

	reparsed, err := ParsePDU(p.Data)
	if err != nil {
		t.Fatal(err)
	}
	var numbers []uint16
	reparsed.WalkUnchecked(func(o Option) bool {
		numbers = append(numbers, o.Number)
		return true
	})
	want := []uint16{1, 14, 28, 29}
	if len(numbers) != len(want) {
		t.Fatalf("decoded numbers %v, want %v", numbers, want)
	}
	for i := range want {
		if numbers[i] != want[i] {
			t.Fatalf("decoded numbers %v, want %v", numbers, want)
		}
	}
}

func TestLongOptionValueRoundTrip(t *testing.T) {
	long := bytes.Repeat([]byte{0x5a}, 40) // needs the extended length byte
	raw := buildRequest(TypeConfirmable, CodePOST, 9, []Option{
		{Number: OptionURIPath, Value: long},
	}, []byte("p"))

	p, err := ParsePDU(raw)
	if err != nil {
		t.Fatal(err)
	}
	vals := optionValues(p, OptionURIPath)
	if len(vals) != 1 || !bytes.Equal(vals[0], long) {
		t.Errorf("long option did not round-trip")
	}
	if !bytes.Equal(p.Payload(), []byte("p")) {
		t.Errorf("payload after long option = %q", p.Payload())
	}
}

func TestTokenExtraction(t *testing.T) {
	raw := buildRequest(TypeConfirmable, CodeGET, 1, []Option{
		{Number: OptionURIPath, Value: []byte("a")},
		{Number: OptionToken, Value: []byte{0xde, 0xad}},
	}, nil)
	p, err := ParsePDU(raw)
	if err != nil {
		t.Fatal(err)
	}
	tok := p.Token()
	if !bytes.Equal(tok.Bytes(), []byte{0xde, 0xad}) {
		t.Errorf("Token = %x, want dead", tok.Bytes())
	}

	bare, err := ParsePDU(buildRequest(TypeConfirmable, CodeGET, 1, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if bare.Token().Len() != 0 {
		t.Error("tokenless PDU should yield the zero token")
	}
}
