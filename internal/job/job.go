// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package job defines the unit of parallel work the orchestrator hands to
// a worker (spec.md §3, "Job").
package job

import (
	"sync"

	"github.com/nishisan-dev/mtcompress/internal/bufpool"
	"github.com/nishisan-dev/mtcompress/internal/cctxpool"
)

// Params carries the compression parameters a job's section.Writer needs.
// ForceMaxWindow is orchestrator-computed, not user-facing.
type Params struct {
	Level          int
	ForceMaxWindow bool
}

// Job is one unit of parallel work: compress SrcStart[PrefixSize:PrefixSize+SrcSize]
// using SrcStart[:PrefixSize] as dictionary context.
//
// Fields written by the worker after submission (CSize, Err, Consumed,
// JobCompleted, and DstBuf.Start once blocks are published) are guarded
// by Cond.L — the single completion mutex shared by every job in a table
// (spec.md §5, "exactly three mutexes per MTCtx"). The worker's initial
// null-to-allocated DstBuf assignment happens without the lock, before
// CSize is first published. Fields set by
// the orchestrator before submission are never touched by the worker and
// need no lock.
type Job struct {
	Cond *sync.Cond

	// Set by the orchestrator before submission.
	SrcBuf        bufpool.Buffer // owned input buffer in streaming mode; null in one-shot
	SrcStart      []byte         // prefix + payload bytes
	PrefixSize    int
	SrcSize       int
	FullFrameSize uint64
	FirstChunk    bool
	LastChunk     bool
	FrameChecksumNeeded bool
	Params        Params
	CDict         []byte // trained dictionary, job 0 only; nil elsewhere
	CCtxPool      *cctxpool.Pool
	BufPool       *bufpool.Pool

	// DstBuf.Start == nil before dispatch means "worker acquires one from
	// BufPool". Only the worker writes to DstBuf before JobCompleted;
	// after JobCompleted, only the orchestrator touches it.
	DstBuf bufpool.Buffer

	// Guarded by Cond.L.
	CSize        int
	Err          error
	Consumed     int
	JobCompleted bool

	// Orchestrator-only bookkeeping, never touched by the worker.
	DstFlushed int
	Prepared   bool // staging already copied into this slot; don't re-prepare on resubmit
}

// Reset clears a table slot for reuse by a new job ID, keeping Cond (the
// shared mutex/condvar) intact.
func (j *Job) Reset() {
	cond := j.Cond
	*j = Job{Cond: cond}
}

// MarkCompleted sets JobCompleted and wakes any waiter. Must be called by
// the worker's finalization step exactly once, with Cond.L held by the
// caller.
func (j *Job) MarkCompleted() {
	j.JobCompleted = true
	j.Cond.Broadcast()
}

// SetError records the job's first error under the completion lock, if
// not already set. It does not mark the job completed; the worker's
// finalization step does that.
func (j *Job) SetError(err error) {
	j.Cond.L.Lock()
	if j.Err == nil {
		j.Err = err
	}
	j.Cond.L.Unlock()
}

// Snapshot returns the job's current progress fields under the
// completion lock — used by progress reporting and flush logic.
type Snapshot struct {
	CSize        int
	Err          error
	Consumed     int
	JobCompleted bool
}

func (j *Job) Snapshot() Snapshot {
	j.Cond.L.Lock()
	defer j.Cond.L.Unlock()
	return Snapshot{CSize: j.CSize, Err: j.Err, Consumed: j.Consumed, JobCompleted: j.JobCompleted}
}
