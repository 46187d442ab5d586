// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tpool adapts a fixed-size goroutine pool to the orchestrator's
// thread-pool contract: create / free (joins) / add (blocking) / tryAdd
// (non-blocking), plus a Running count of busy workers.
package tpool

import (
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
)

// addRetryInterval is the backoff between TryAdd attempts inside the
// blocking Add helper.
const addRetryInterval = 100 * time.Microsecond

// Pool is a fixed-capacity goroutine pool backed by a single ants.Pool
// configured non-blocking, so the worker ceiling (nThreads) is never
// exceeded regardless of which of Add/TryAdd the caller uses.
type Pool struct {
	inner *ants.Pool
}

// New creates a pool with a hard ceiling of nThreads concurrently running
// tasks.
func New(nThreads int) (*Pool, error) {
	if nThreads < 1 {
		return nil, fmt.Errorf("tpool: nThreads must be >= 1, got %d", nThreads)
	}

	inner, err := ants.NewPool(nThreads, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("tpool: creating pool: %w", err)
	}

	return &Pool{inner: inner}, nil
}

// Add submits fn, retrying with a short backoff until a worker slot frees
// up. Neither the streaming nor the one-shot orchestrator path calls this:
// both use TryAdd directly, so a full pool becomes a deferred "jobReady"
// (streaming) or a caller-owned retry loop (one-shot) instead of blocking
// inside the pool itself. Add is kept as a simple blocking convenience for
// other callers of this package.
func (p *Pool) Add(fn func()) error {
	for {
		if p.TryAdd(fn) {
			return nil
		}
		time.Sleep(addRetryInterval)
	}
}

// TryAdd submits fn without blocking. It returns false (not an error) when
// every worker is busy — the orchestrator's createCompressionJob treats
// this as "pool busy, retry later" (jobReady), not a hard failure.
func (p *Pool) TryAdd(fn func()) bool {
	return p.inner.Submit(fn) == nil
}

// Running reports the number of workers currently executing a task.
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Free releases the underlying pool, blocking until in-flight workers
// finish. Must be called before the orchestrator discards its job table or
// pools, so no worker touches freed memory.
func (p *Pool) Free() {
	p.inner.Release()
	for p.inner.Running() > 0 {
		time.Sleep(addRetryInterval)
	}
}
