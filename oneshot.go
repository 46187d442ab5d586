// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mtcompress

import (
	"fmt"
	"sync"
	"time"

	"github.com/nishisan-dev/mtcompress/internal/job"
	"github.com/nishisan-dev/mtcompress/internal/section"
	"github.com/nishisan-dev/mtcompress/internal/sizing"
	"github.com/nishisan-dev/mtcompress/internal/worker"
	"github.com/nishisan-dev/mtcompress/internal/xxh"
)

// dispatchRetryInterval is the backoff between TryAdd attempts when every
// worker is busy. One-shot dispatch has no deferred-retry call to fall
// back on the way streaming does (spec.md §4.4.2's jobReady), so it
// spins on the non-blocking primitive itself instead of calling the
// pool's own blocking Add.
const dispatchRetryInterval = 100 * time.Microsecond

// CompressOneShot compresses the whole of src into dst in one call,
// partitioning the work across the context's worker pool when src is
// large enough to be worth splitting (spec.md §4.4.2). On the
// single-context path dst must have capacity for at least
// section.Bound(len(src)) bytes (plus 4 more if ChecksumFlag is set);
// otherwise ErrDstTooSmall is returned. On the parallel path a smaller
// dst is accepted: jobs then compress into pooled buffers, and
// ErrDstTooSmall is returned only if the actual output does not fit. The
// context must not have a streaming frame in progress.
func (m *MTCtx) CompressOneShot(dst, src []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.stage != stageIdle {
		m.mu.Unlock()
		return 0, ErrWrongStage
	}
	m.mu.Unlock()

	if len(src) == 0 {
		return m.compressOneShotSingle(dst, src)
	}

	target, nbJobs := m.planOneShot(len(src))
	if nbJobs <= 1 || m.params.NbThreads <= 1 || len(src) < sizing.JobSizeMin {
		return m.compressOneShotSingle(dst, src)
	}
	return m.compressOneShotParallel(dst, src, target, nbJobs)
}

// planOneShot decides how many jobs to split src across and their
// target size, porting ZSTDMT_computeNbChunks and the avgChunkSize
// adjustment from original_source/lib/compress/zstdmt_compress.c
// verbatim: target chunk size is derived from the window log, chunk
// count escalates in whole multiples of the thread count once srcSize
// would otherwise overload a single pass, and the per-chunk average is
// bumped by 0xFFFF whenever the naive split would leave a last chunk
// both small and off the 128KiB boundary.
func (m *MTCtx) planOneShot(srcSize int) (jobSize int, nbJobs int) {
	nbThreads := m.params.NbThreads
	if nbThreads < 1 {
		nbThreads = 1
	}

	target := 1 << uint(m.windowLog+2)
	maxChunk := target << 2
	perPass := maxChunk * nbThreads

	multiplier := srcSize/perPass + 1
	nbChunksLarge := multiplier * nbThreads
	nbChunksMax := srcSize/target + 1
	nbChunksSmall := nbThreads
	if nbChunksMax < nbChunksSmall {
		nbChunksSmall = nbChunksMax
	}

	nbChunks := nbChunksSmall
	if multiplier > 1 {
		nbChunks = nbChunksLarge
	}
	if nbChunks < 1 {
		nbChunks = 1
	}

	proposed := (srcSize + nbChunks - 1) / nbChunks
	avg := proposed
	if ((proposed-1)&0x1FFFF) < 0x7FFF {
		avg = proposed + 0xFFFF
	}

	return avg, nbChunks
}

func (m *MTCtx) compressOneShotSingle(dst, src []byte) (int, error) {
	need := section.Bound(len(src))
	if m.params.ChecksumFlag {
		need += 4
	}
	if cap(dst) < need {
		return 0, ErrDstTooSmall
	}

	ctx := m.cctxPool.Acquire()
	defer m.cctxPool.Release(ctx)

	prefix, rawContent := []byte(nil), true
	if len(m.dictionary) > 0 {
		prefix, rawContent = m.dictionary, false
	}
	if err := ctx.Writer.Begin(prefix, rawContent, uint64(len(src)), false); err != nil {
		return 0, fmt.Errorf("mtcompress: %w", err)
	}
	out, err := ctx.Writer.End(dst[:0], src)
	if err != nil {
		return 0, fmt.Errorf("mtcompress: %w", err)
	}

	if m.params.ChecksumFlag {
		sum := xxh.New(0)
		sum.Update(src)
		out = appendChecksum(out, sum.Digest())
	}
	return len(out), nil
}

func (m *MTCtx) compressOneShotParallel(dst, src []byte, target, nbJobs int) (int, error) {
	overlap := sizing.OverlapSize(m.windowLog, m.params.OverlapLog)

	type chunkPlan struct {
		start, size, prefixSize int
	}
	plans := make([]chunkPlan, 0, nbJobs)
	off := 0
	for i := 0; i < nbJobs; i++ {
		size := target
		if i == nbJobs-1 {
			size = len(src) - off
		}
		if size <= 0 {
			break
		}
		prefixSize := 0
		if i > 0 {
			prefixSize = overlap
			if prefixSize > off {
				prefixSize = off
			}
		}
		plans = append(plans, chunkPlan{start: off - prefixSize, size: size, prefixSize: prefixSize})
		off += size
	}
	nbJobs = len(plans)

	bounds := make([]int, nbJobs)
	total := 0
	for i, p := range plans {
		bounds[i] = section.Bound(p.size)
		total += bounds[i]
	}
	need := total
	if m.params.ChecksumFlag {
		need += 4
	}
	directToDst := cap(dst) >= need

	m.jobs.Grow(nbJobs)
	jobs := make([]*job.Job, nbJobs)
	runningOffset := 0
	for i, p := range plans {
		j := m.jobs.Slot(uint64(i))
		j.Reset()
		j.SrcStart = src[p.start : p.start+p.prefixSize+p.size]
		j.PrefixSize = p.prefixSize
		j.SrcSize = p.size
		j.FullFrameSize = uint64(len(src))
		j.FirstChunk = i == 0
		j.LastChunk = i == nbJobs-1
		j.Params = job.Params{Level: m.params.Level, ForceMaxWindow: i > 0}
		j.CCtxPool = m.cctxPool
		j.BufPool = m.bufPool
		if j.FirstChunk && len(m.dictionary) > 0 {
			j.CDict = m.dictionary
		}
		if directToDst {
			j.DstBuf.Start = dst[runningOffset:runningOffset : runningOffset+bounds[i]]
			runningOffset += bounds[i]
		}
		jobs[i] = j
	}

	var wg sync.WaitGroup
	for i, j := range jobs {
		jj := j
		wg.Add(1)
		for !m.pool.TryAdd(func() { defer wg.Done(); worker.Run(jj) }) {
			time.Sleep(dispatchRetryInterval)
		}
		m.logger.Debug("dispatched job", "jobID", i, "size", plans[i].size, "prefixSize", plans[i].prefixSize)
	}
	wg.Wait()

	var firstErr error
	out := dst
	totalOut := 0
	if !directToDst {
		out = make([]byte, 0, need)
	}
	for i, j := range jobs {
		snap := j.Snapshot()
		if snap.Err != nil {
			m.logger.Warn("job failed", "jobID", i, "err", snap.Err)
			if firstErr == nil {
				firstErr = &jobError{jobID: uint64(i), err: snap.Err}
			}
		}
		if directToDst {
			// Each job wrote at its own bound-sized offset; move its
			// output down so the sections are contiguous.
			totalOut += copy(dst[totalOut:cap(dst)], j.DstBuf.Start[:snap.CSize])
		} else {
			out = append(out, j.DstBuf.Start[:snap.CSize]...)
			m.bufPool.Release(j.DstBuf)
		}
	}
	if firstErr != nil {
		return 0, firstErr
	}

	if m.params.ChecksumFlag {
		sum := xxh.New(0)
		sum.Update(src)
		if directToDst {
			out = appendChecksum(dst[:totalOut], sum.Digest())
			totalOut = len(out)
		} else {
			out = appendChecksum(out, sum.Digest())
		}
	}

	if directToDst {
		return totalOut, nil
	}
	if cap(dst) < len(out) {
		return 0, ErrDstTooSmall
	}
	n := copy(dst[:cap(dst)], out)
	return n, nil
}

// appendChecksum appends the little-endian 4-byte encoding of the low 32
// bits of sum to dst (spec.md §6: "low 32 bits of the digest are written
// little-endian as the 4-byte frame trailer").
func appendChecksum(dst []byte, sum uint64) []byte {
	low := uint32(sum)
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = byte(low >> (8 * uint(i)))
	}
	return append(dst, b[:]...)
}
