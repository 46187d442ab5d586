// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package jobtable implements the orchestrator's fixed-size job ring
// (spec.md §3, "JobTable") and owns the single completion mutex/condvar
// pair every job in the table shares (spec.md §5).
package jobtable

import (
	"sync"

	"github.com/nishisan-dev/mtcompress/internal/job"
)

// Table is a ring of job slots indexed by jobID & mask. Size is always a
// power of two, grown (never shrunk) to hold at least minSlots entries.
type Table struct {
	mu        sync.Mutex
	cond      *sync.Cond
	entries   []*job.Job
	mask      uint64
	nextJobID uint64
	doneJobID uint64
}

// New creates a table with room for at least minSlots jobs.
func New(minSlots int) *Table {
	t := &Table{}
	t.cond = sync.NewCond(&t.mu)
	t.grow(minSlots)
	return t
}

// Cond returns the shared completion condvar. Cond.L is the completion
// mutex.
func (t *Table) Cond() *sync.Cond {
	return t.cond
}

// Mask returns the current ring mask (size-1).
func (t *Table) Mask() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mask
}

// Size returns the current ring capacity (a power of two).
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Grow expands the ring to hold at least minSlots entries if it does not
// already, preserving any live (unconsumed) jobs at their jobID & newMask
// position. Mirrors the original's ZSTDMT_expandJobsTable: doubling,
// never shrinking.
func (t *Table) Grow(minSlots int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grow(minSlots)
}

func (t *Table) grow(minSlots int) {
	if minSlots < 1 {
		minSlots = 1
	}
	size := 1
	for size < minSlots {
		size <<= 1
	}
	if len(t.entries) >= size {
		return
	}

	newEntries := make([]*job.Job, size)
	newMask := uint64(size - 1)
	for id := t.doneJobID; id < t.nextJobID; id++ {
		if old := t.entries[id&t.mask]; old != nil {
			newEntries[id&newMask] = old
		}
	}
	t.entries = newEntries
	t.mask = newMask
}

// Slot returns the job slot for jobID, lazily allocating it (sharing this
// table's condvar) if it has never been used.
func (t *Table) Slot(jobID uint64) *job.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := jobID & t.mask
	if t.entries[idx] == nil {
		t.entries[idx] = &job.Job{Cond: t.cond}
	}
	return t.entries[idx]
}

// NextJobID returns the next job ID to be created.
func (t *Table) NextJobID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextJobID
}

// DoneJobID returns the oldest job ID not yet fully consumed.
func (t *Table) DoneJobID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneJobID
}

// RingFull reports whether nextJobID - doneJobID has reached the ring's
// capacity (spec.md §3 invariant: nextJobId - doneJobId <= mask+1).
func (t *Table) RingFull() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextJobID-t.doneJobID > t.mask
}

// AdvanceNext increments nextJobID after a successful submission.
func (t *Table) AdvanceNext() {
	t.mu.Lock()
	t.nextJobID++
	t.mu.Unlock()
}

// AdvanceDone increments doneJobID after a job is fully drained.
func (t *Table) AdvanceDone() {
	t.mu.Lock()
	t.doneJobID++
	t.mu.Unlock()
}

// ResetIDs resets both counters to zero, used when a frame starts fresh.
func (t *Table) ResetIDs() {
	t.mu.Lock()
	t.nextJobID = 0
	t.doneJobID = 0
	t.mu.Unlock()
}
