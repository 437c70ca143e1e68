// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"testing"

	"github.com/coapkit/coapd/pkg/coap"
)

func TestPoolExhaustion(t *testing.T) {
	p := New(2)

	a, ok := p.AllocNode()
	if !ok || a == nil {
		t.Fatal("first alloc failed")
	}
	b, ok := p.AllocNode()
	if !ok || b == nil {
		t.Fatal("second alloc failed")
	}
	if a == b {
		t.Fatal("pool handed out the same slot twice")
	}

	if _, ok := p.AllocNode(); ok {
		t.Error("alloc beyond capacity must fail, not grow")
	}

	p.FreeNode(a)
	c, ok := p.AllocNode()
	if !ok {
		t.Fatal("alloc after free failed")
	}
	if c != a {
		t.Error("freed slot was not reused")
	}
}

func TestPoolResetsReusedNodes(t *testing.T) {
	p := New(1)
	n, _ := p.AllocNode()
	n.T = 42
	n.RetransmitCount = 3
	n.TransactionID = 7
	p.FreeNode(n)

	again, _ := p.AllocNode()
	if again.T != 0 || again.RetransmitCount != 0 || again.TransactionID != 0 {
		t.Error("reused slot carried stale state")
	}
}

func TestPoolIgnoresDoubleFree(t *testing.T) {
	p := New(1)
	n, _ := p.AllocNode()
	p.FreeNode(n)
	p.FreeNode(n) // must not corrupt the free list

	if got := p.Available(); got != 1 {
		t.Errorf("Available = %d after double free, want 1", got)
	}
}

func TestPoolIgnoresForeignNode(t *testing.T) {
	p := New(1)
	p.FreeNode(&coap.QueueNode{})
	p.FreeNode(nil)

	if got := p.Available(); got != 1 {
		t.Errorf("Available = %d, want untouched capacity 1", got)
	}
}

func TestPoolCounters(t *testing.T) {
	p := New(3)
	if p.Capacity() != 3 || p.Available() != 3 {
		t.Fatalf("fresh pool: capacity=%d available=%d", p.Capacity(), p.Available())
	}
	n, _ := p.AllocNode()
	if p.Available() != 2 {
		t.Errorf("Available = %d after alloc, want 2", p.Available())
	}
	p.FreeNode(n)
	if p.Available() != 3 {
		t.Errorf("Available = %d after free, want 3", p.Available())
	}
}
