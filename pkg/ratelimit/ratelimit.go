// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit throttles inbound datagrams per peer address before
// the reader turns them into receive-queue nodes, protecting the node
// allocator from a single flooding peer.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a single peer's token bucket.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a bucket holding capacity tokens, refilled at
// refillRate tokens per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether one datagram may be admitted.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether n datagrams may be admitted at once.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Available returns the current token count.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Limiter tracks one TokenBucket per peer address, keyed by the peer's
// string form (PeerAddress.String()). It satisfies the coap.RateLimiter
// interface the reader consults before allocating a receive node.
type Limiter struct {
	mu           sync.RWMutex
	buckets      map[string]*TokenBucket
	capacity     int64
	refillRate   int64
	maxPeers     int
	cleanupTimer *time.Timer
}

// NewLimiter creates a per-peer rate limiter. capacity and refillRate
// configure each peer's bucket; maxPeers bounds the tracked-peer map
// (0 selects a default of 10000).
func NewLimiter(capacity, refillRate int64, maxPeers int) *Limiter {
	if maxPeers == 0 {
		maxPeers = 10000
	}
	l := &Limiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		maxPeers:   maxPeers,
	}
	l.cleanupTimer = time.AfterFunc(5*time.Minute, l.cleanup)
	return l
}

// Allow reports whether a datagram from peer may be admitted.
func (l *Limiter) Allow(peer string) bool {
	return l.AllowN(peer, 1)
}

// AllowN reports whether n datagrams from peer may be admitted at once.
func (l *Limiter) AllowN(peer string, n int64) bool {
	l.mu.RLock()
	tb, exists := l.buckets[peer]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		tb, exists = l.buckets[peer]
		if !exists {
			if len(l.buckets) >= l.maxPeers {
				l.mu.Unlock()
				return false
			}
			tb = NewTokenBucket(l.capacity, l.refillRate)
			l.buckets[peer] = tb
		}
		l.mu.Unlock()
	}

	return tb.AllowN(n)
}

// Remove drops a peer's bucket, e.g. once its last outstanding
// transaction is known to be gone.
func (l *Limiter) Remove(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, peer)
}

// cleanup bounds unbounded growth from a long tail of one-shot peers.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > l.maxPeers*2 {
		count := 0
		target := l.maxPeers
		kept := make(map[string]*TokenBucket)
		for k, v := range l.buckets {
			if count < target {
				kept[k] = v
				count++
			}
		}
		l.buckets = kept
	}
	l.cleanupTimer = time.AfterFunc(5*time.Minute, l.cleanup)
}

// Stats reports the number of peers currently tracked.
func (l *Limiter) Stats() (peers int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Close stops the background cleanup timer.
func (l *Limiter) Close() {
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}
