// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mtcompress

import (
	"github.com/nishisan-dev/mtcompress/internal/bufpool"
	"github.com/nishisan-dev/mtcompress/internal/job"
	"github.com/nishisan-dev/mtcompress/internal/sizing"
	"github.com/nishisan-dev/mtcompress/internal/worker"
	"github.com/nishisan-dev/mtcompress/internal/xxh"
)

// CompressContinue feeds src into the frame currently being streamed,
// preparing and submitting a job each time the accumulation buffer
// reaches the context's job-size target (spec.md §4.4.3). It always
// consumes the whole of src. If every worker slot is busy when a job
// is ready, the job is posted (jobReady) and is retried without
// re-preparation: on the next CompressContinue or End call, or within
// this call when src still has bytes left once the staging buffer is
// full again, in which case this call keeps retrying until a worker
// accepts the posted job.
func (m *MTCtx) CompressContinue(src []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if m.stage == stageEnded {
		return 0, ErrWrongStage
	}
	m.stage = stageStreaming

	if m.params.ChecksumFlag && m.checksum == nil {
		m.checksum = xxh.New(0)
	}

	if m.jobReady {
		if err := m.submitPendingJob(); err != nil {
			return 0, err
		}
	}

	target := m.jobSizeTarget()
	consumed := 0
	for consumed < len(src) {
		if m.inBuff.IsNull() {
			m.inBuff = m.bufPool.Acquire()
			if m.inBuff.IsNull() {
				m.logger.Warn("buffer pool acquire miss", "target", target)
				return consumed, ErrMemory
			}
			m.inBuffFilled = 0
		}

		room := cap(m.inBuff.Start) - m.inBuffFilled
		n := len(src) - consumed
		if n > room {
			n = room
		}
		if n > 0 {
			chunk := src[consumed : consumed+n]
			m.inBuff.Start = append(m.inBuff.Start[:m.inBuffFilled], chunk...)
			m.inBuffFilled += n
			consumed += n
			m.ingested += uint64(n)
			if m.checksum != nil {
				m.checksum.Update(chunk)
			}
		}

		if m.inBuffFilled >= target {
			if err := m.createCompressionJob(false); err != nil {
				return consumed, err
			}
		}
	}
	return consumed, nil
}

// createCompressionJob packages the current accumulation buffer (plus
// any retained overlap prefix) into a job and submits it, retaining
// this job's tail as the next job's prefix. If a previously prepared
// job is still waiting on jobReady, it is retried first and no new job
// is prepared until it is accepted (spec.md §4.4.2). Must be called
// with m.mu held.
func (m *MTCtx) createCompressionJob(lastChunk bool) error {
	if !m.jobReady {
		if err := m.prepareCompressionJob(lastChunk); err != nil {
			return err
		}
	}
	return m.submitPendingJob()
}

// prepareCompressionJob copies the current staging data into the slot
// at NextJobID and marks it posted (jobReady), without submitting it to
// the pool yet. Must be called with m.mu held and only when !m.jobReady.
func (m *MTCtx) prepareCompressionJob(lastChunk bool) error {
	if m.jobs.RingFull() {
		// The ring has no free slot for a new job because doneJobID
		// hasn't caught up yet. Grow it rather than reuse (and
		// potentially corrupt) a slot a worker may still be writing to
		// (mirrors ZSTDMT_expandJobsTable in original_source/).
		m.jobs.Grow(m.jobs.Size() * 2)
	}

	size := m.inBuffFilled
	nextID := m.jobs.NextJobID()
	j := m.jobs.Slot(nextID)
	j.Reset()

	prefixLen := len(m.prefix)
	combined := m.bufPool.Acquire()
	needLen := prefixLen + size
	if cap(combined.Start) < needLen {
		combined.Start = make([]byte, 0, needLen)
	}
	combined.Start = append(combined.Start[:0], m.prefix...)
	if size > 0 {
		combined.Start = append(combined.Start, m.inBuff.Start[:size]...)
	}

	j.SrcBuf = combined
	j.SrcStart = combined.Start
	j.PrefixSize = prefixLen
	j.SrcSize = size
	j.FirstChunk = nextID == 0
	j.LastChunk = lastChunk
	j.Params = job.Params{Level: m.params.Level, ForceMaxWindow: !j.FirstChunk}
	j.CCtxPool = m.cctxPool
	j.BufPool = m.bufPool
	if j.FirstChunk && len(m.dictionary) > 0 {
		j.CDict = m.dictionary
	}
	j.Prepared = true

	overlap := sizing.OverlapSize(m.windowLog, m.params.OverlapLog)
	switch {
	case overlap > 0 && size > 0:
		tailLen := overlap
		if tailLen > size {
			tailLen = size
		}
		m.prefix = append([]byte(nil), m.inBuff.Start[size-tailLen:size]...)
	case overlap == 0:
		m.prefix = nil
	}

	if !m.inBuff.IsNull() {
		m.bufPool.Release(m.inBuff)
		m.inBuff = bufpool.Buffer{}
	}
	m.inBuffFilled = 0

	m.jobReady = true
	return nil
}

// submitPendingJob tries a non-blocking submit of the job prepared at
// NextJobID. On acceptance it advances NextJobID and clears jobReady;
// on rejection (every worker busy) jobReady is left set so the job
// stays posted, without re-copying its staging data, for the next
// streaming call to retry (spec.md §4.4.2). Must be called with m.mu
// held and only when m.jobReady.
func (m *MTCtx) submitPendingJob() error {
	nextID := m.jobs.NextJobID()
	j := m.jobs.Slot(nextID)
	jj := j
	if !m.pool.TryAdd(func() { worker.Run(jj) }) {
		m.logger.Debug("pool busy, deferring job submission", "jobID", nextID)
		return nil
	}
	j.Prepared = false
	m.jobReady = false
	m.jobs.AdvanceNext()
	m.logger.Debug("dispatched job", "jobID", nextID, "size", j.SrcSize, "prefixSize", j.PrefixSize, "lastChunk", j.LastChunk)
	return nil
}

// flushProduced copies as much already-compressed output as fits in dst,
// in frame order, releasing each job's destination buffer once fully
// drained. It never blocks: a job still running simply yields whatever
// bytes it has published so far. Must be called with m.mu NOT held: it
// reads worker-written job state under the jobs' own completion lock,
// takes m.mu itself to update the produced counter, and uses
// bufPool/jobs, which are independently safe.
func (m *MTCtx) flushProduced(dst []byte) (written int, hasMore bool) {
	for written < len(dst) {
		done := m.jobs.DoneJobID()
		next := m.jobs.NextJobID()
		if done >= next {
			return written, false
		}

		j := m.jobs.Slot(done)
		snap := j.Snapshot()
		available := snap.CSize - j.DstFlushed
		if available > 0 {
			j.Cond.L.Lock()
			out := j.DstBuf.Start
			j.Cond.L.Unlock()
			n := copy(dst[written:], out[j.DstFlushed:snap.CSize])
			j.DstFlushed += n
			written += n
			m.mu.Lock()
			m.produced += uint64(n)
			m.mu.Unlock()
			if n < available {
				return written, true
			}
		}
		if !snap.JobCompleted {
			return written, true
		}
		if snap.Err != nil {
			m.logger.Warn("job failed", "jobID", done, "err", snap.Err)
		}

		if !j.DstBuf.IsNull() {
			m.bufPool.Release(j.DstBuf)
			j.DstBuf = bufpool.Buffer{}
		}
		m.jobs.AdvanceDone()
	}

	done := m.jobs.DoneJobID()
	next := m.jobs.NextJobID()
	return written, done < next
}

// Flush drains whatever compressed output is currently ready into dst
// without forcing a frame boundary. Call repeatedly (growing dst or
// draining between calls) until hasMore is false.
func (m *MTCtx) Flush(dst []byte) (written int, hasMore bool, err error) {
	m.mu.Lock()
	closed := m.closed
	stage := m.stage
	m.mu.Unlock()

	if closed {
		return 0, false, ErrClosed
	}
	if stage == stageIdle {
		return 0, false, nil
	}
	written, hasMore = m.flushProduced(dst)
	return written, hasMore, nil
}

// CompressStream is a convenience wrapper combining CompressContinue and
// Flush for callers that don't need fine-grained control over when
// output is drained.
func (m *MTCtx) CompressStream(dst, src []byte) (consumed, written int, err error) {
	consumed, err = m.CompressContinue(src)
	if err != nil {
		return consumed, 0, err
	}
	written, _, err = m.Flush(dst)
	return consumed, written, err
}

// End closes the current frame: the last job is submitted with its
// LastChunk flag set (even if empty, to correctly close a zero-byte or
// exact-multiple-of-jobSize frame), then drains all remaining output —
// including the trailing checksum, if ChecksumFlag is set — into dst.
// Call repeatedly while hasMore is true.
func (m *MTCtx) End(dst []byte) (written int, hasMore bool, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, false, ErrClosed
	}
	if m.stage != stageEnded {
		// A job posted by CompressContinue that is still waiting for a
		// worker goes first; the closing job is prepared once it is in.
		if m.jobReady {
			if err := m.submitPendingJob(); err != nil {
				m.mu.Unlock()
				return 0, false, err
			}
		}
		if !m.jobReady {
			if err := m.createCompressionJob(true); err != nil {
				m.mu.Unlock()
				return 0, false, err
			}
			m.stage = stageEnded
		}
	} else if m.jobReady {
		if err := m.submitPendingJob(); err != nil {
			m.mu.Unlock()
			return 0, false, err
		}
	}
	stillPending := m.jobReady || m.stage != stageEnded
	m.mu.Unlock()

	written, hasMore = m.flushProduced(dst)
	if hasMore || stillPending {
		return written, true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params.ChecksumFlag && m.pendingChecksum == nil {
		var sum uint64
		if m.checksum != nil {
			sum = m.checksum.Digest()
		}
		m.pendingChecksum = appendChecksum(nil, sum)
	}
	if len(m.pendingChecksum) > 0 {
		n := copy(dst[written:], m.pendingChecksum)
		m.pendingChecksum = m.pendingChecksum[n:]
		written += n
	}
	return written, len(m.pendingChecksum) > 0, nil
}
