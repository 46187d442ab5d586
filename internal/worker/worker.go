// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package worker implements the per-job compression pipeline spec.md
// §4.3 describes: acquire a context and a destination buffer, prime the
// inner compressor with the job's prefix (or trained dictionary), walk
// the payload in BLOCK_MAX-sized chunks updating progress under the
// job's completion lock, then finalize: release the context and the
// job's source buffer. The destination buffer stays with the job for the
// orchestrator to drain.
package worker

import (
	"fmt"

	"github.com/nishisan-dev/mtcompress/internal/cctxpool"
	"github.com/nishisan-dev/mtcompress/internal/job"
	"github.com/nishisan-dev/mtcompress/internal/sizing"
)

// Run executes j to completion. It never panics and never leaves j
// without JobCompleted set, even on failure — the caller (orchestrator)
// relies on JobCompleted to reclaim the slot.
func Run(j *job.Job) {
	ctx := j.CCtxPool.Acquire()
	if ctx == nil {
		j.SetError(fmt.Errorf("worker: context pool exhausted"))
		finalize(j, nil)
		return
	}

	if j.DstBuf.IsNull() {
		j.DstBuf = j.BufPool.Acquire()
		if j.DstBuf.IsNull() {
			j.SetError(fmt.Errorf("worker: buffer pool exhausted"))
			finalize(j, ctx)
			return
		}
	}

	if err := begin(j, ctx); err != nil {
		j.SetError(err)
		finalize(j, ctx)
		return
	}

	if !j.FirstChunk {
		// Continuation chunks of the same frame carry no section header
		// of their own; this zero-length Continue call exists so a
		// future inner compressor that DOES emit a per-section header
		// (the way zstd's block header is rewritten in place) has a
		// hook to overwrite it. flate writes only an empty sync-flush
		// block here (no section header), kept for contract fidelity
		// (SPEC_FULL.md §4.3).
		dst, err := ctx.Writer.Continue(j.DstBuf.Start, nil)
		if err != nil {
			j.SetError(fmt.Errorf("worker: header continuation: %w", err))
			finalize(j, ctx)
			return
		}
		j.DstBuf.Start = dst
		ctx.Writer.InvalidateRepCodes()
	}

	payload := j.SrcStart[j.PrefixSize : j.PrefixSize+j.SrcSize]
	if err := compressBlocks(j, ctx, payload); err != nil {
		j.SetError(err)
		finalize(j, ctx)
		return
	}

	finalize(j, ctx)
}

// begin primes the inner compressor with dictionary context: the job-0
// trained dictionary if present, otherwise the previous chunk's tail as
// a raw-content prefix. forceMaxWindow mirrors zstd's rule that only the
// very first chunk of a frame may size its window to the frame's actual
// content; later chunks must commit to the frame's full window so the
// decoder's window never has to grow mid-frame.
func begin(j *job.Job, ctx *cctxpool.CCtx) error {
	pledged := j.FullFrameSize
	if !j.FirstChunk {
		pledged = uint64(j.SrcSize)
	}

	if len(j.CDict) > 0 {
		return ctx.Writer.Begin(j.CDict, false, pledged, j.Params.ForceMaxWindow)
	}

	prefix := j.SrcStart[:j.PrefixSize]
	return ctx.Writer.Begin(prefix, true, pledged, j.Params.ForceMaxWindow)
}

// compressBlocks feeds payload through the inner compressor BLOCK_MAX
// bytes at a time, publishing CSize/Consumed after each block so a
// concurrent flush can observe partial progress (spec.md §4.3 step 5).
func compressBlocks(j *job.Job, ctx *cctxpool.CCtx, payload []byte) error {
	off := 0
	for off < len(payload) {
		end := off + sizing.BlockMax
		if end > len(payload) {
			end = len(payload)
		}
		block := payload[off:end]
		isLast := end == len(payload)

		var dst []byte
		var err error
		if isLast && j.LastChunk {
			dst, err = ctx.Writer.End(j.DstBuf.Start, block)
		} else {
			dst, err = ctx.Writer.Continue(j.DstBuf.Start, block)
		}
		if err != nil {
			return fmt.Errorf("worker: compressing block: %w", err)
		}

		j.Cond.L.Lock()
		j.DstBuf.Start = dst
		j.CSize = len(dst)
		j.Consumed += len(block)
		j.Cond.Broadcast()
		j.Cond.L.Unlock()

		off = end
	}

	// Empty payload (a zero-length last chunk closing the frame) still
	// needs the closing call emitted.
	if len(payload) == 0 && j.LastChunk {
		dst, err := ctx.Writer.End(j.DstBuf.Start, nil)
		if err != nil {
			return fmt.Errorf("worker: closing empty chunk: %w", err)
		}
		j.Cond.L.Lock()
		j.DstBuf.Start = dst
		j.CSize = len(dst)
		j.Cond.Broadcast()
		j.Cond.L.Unlock()
	}

	return nil
}

// finalize releases the context back to its pool, releases the source
// buffer if this job owned one (streaming mode), and marks the job
// completed. ctx may be nil if context acquisition itself failed.
func finalize(j *job.Job, ctx *cctxpool.CCtx) {
	if ctx != nil {
		j.CCtxPool.Release(ctx)
	}
	if !j.SrcBuf.IsNull() {
		j.BufPool.Release(j.SrcBuf)
	}

	j.Cond.L.Lock()
	j.SrcBuf.Start = nil
	j.SrcStart = nil
	j.MarkCompleted()
	j.Cond.L.Unlock()
}
