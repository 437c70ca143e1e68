// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool implements the constrained-profile allocator: a fixed
// block of QueueNode slots, handed out and reclaimed without touching
// the heap after construction, so that allocation failure is a
// first-class, non-fatal outcome (an empty free list) rather than
// something the host's memory pressure decides.
package pool

import (
	"sync"

	"github.com/coapkit/coapd/pkg/coap"
)

// NodePool is a fixed-capacity coap.Allocator. It satisfies the same
// Allocator interface the general-purpose heap allocator does, so a host
// switches profiles by swapping which one it installs in
// EndpointConfig.Allocator.
type NodePool struct {
	mu      sync.Mutex
	slots   []coap.QueueNode
	indexOf map[*coap.QueueNode]int
	free    []int // indices into slots currently available
	inUse   []bool
}

// New constructs a NodePool with exactly capacity slots.
func New(capacity int) *NodePool {
	p := &NodePool{
		slots:   make([]coap.QueueNode, capacity),
		indexOf: make(map[*coap.QueueNode]int, capacity),
		free:    make([]int, capacity),
		inUse:   make([]bool, capacity),
	}
	for i := range p.free {
		p.free[i] = i
		p.indexOf[&p.slots[i]] = i
	}
	return p
}

// AllocNode hands out a slot, or reports failure if every slot is in use.
func (p *NodePool) AllocNode() (*coap.QueueNode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[idx] = true

	node := &p.slots[idx]
	*node = coap.QueueNode{}
	return node, true
}

// FreeNode returns a slot to the pool. Nodes that do not belong to this
// pool's backing array, and slots already free, are ignored rather than
// corrupting the free list.
func (p *NodePool) FreeNode(node *coap.QueueNode) {
	if node == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.indexOf[node]
	if !ok || !p.inUse[idx] {
		return
	}
	p.inUse[idx] = false
	p.free = append(p.free, idx)
}

// Available reports how many slots are currently free.
func (p *NodePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity reports the pool's fixed size.
func (p *NodePool) Capacity() int {
	return len(p.slots)
}
