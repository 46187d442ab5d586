// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cctxpool implements the orchestrator's bounded compressor
// context cache (spec.md §4.2). Structurally it mirrors bufpool, minus
// the size-band acceptance test: any cached context is reusable
// regardless of its prior section's size.
package cctxpool

import (
	"sync"

	"github.com/nishisan-dev/mtcompress/internal/section"
)

// CCtx is one reusable compressor context.
type CCtx struct {
	Writer *section.Writer
}

// Pool caches up to nbThreads contexts. It starts with one lazily-created
// context reserved so the single-thread fallback path always has one
// available even before any worker has run.
type Pool struct {
	mu       sync.Mutex
	capacity int
	level    int
	cached   []*CCtx
}

// New creates a pool sized to nbThreads, pre-seeded with one context.
func New(nbThreads int, level int) *Pool {
	p := &Pool{capacity: nbThreads, level: level}
	p.cached = append(p.cached, newCCtx(level))
	return p
}

var newCCtx = func(level int) *CCtx {
	return &CCtx{Writer: section.NewWriter(level)}
}

// Acquire returns a cached context if one is available, else attempts to
// create a new one. Creation may return nil on allocation failure —
// expressed here as a constructor that can fail, even though the default
// implementation never does, so pool exhaustion under real memory
// pressure is representable.
func (p *Pool) Acquire() *CCtx {
	p.mu.Lock()
	if n := len(p.cached); n > 0 {
		c := p.cached[n-1]
		p.cached = p.cached[:n-1]
		p.mu.Unlock()
		return c
	}
	p.mu.Unlock()

	return newCCtx(p.level)
}

// Release caches ctx if there is room (up to capacity), else it is
// dropped — the overflow case spec.md §4.2 calls "expected impossible
// when availCCtx + inUse <= totalCCtx", but harmless if it ever happens.
func (p *Pool) Release(ctx *CCtx) {
	if ctx == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cached) < p.capacity {
		p.cached = append(p.cached, ctx)
	}
}

// Capacity returns the maximum number of simultaneously cached contexts.
func (p *Pool) Capacity() int {
	return p.capacity
}
