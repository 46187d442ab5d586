// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mtcompress

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/mtcompress/internal/xxh"
)

// drainAll repeatedly calls fn (Flush or End) until hasMore is false,
// accumulating every byte produced.
func drainAll(t *testing.T, fn func(dst []byte) (int, bool, error), chunk int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, chunk)
	for {
		n, hasMore, err := fn(buf)
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		out = append(out, buf[:n]...)
		if !hasMore {
			return out
		}
	}
}

func TestStreamSingleJobRoundTrip(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 2})

	payload := bytes.Repeat([]byte("stream me please "), 2000) // well under one job
	if _, err := m.CompressContinue(payload); err != nil {
		t.Fatalf("CompressContinue: %v", err)
	}

	out := drainAll(t, m.End, 4096)
	got := inflateAll(t, out)
	if !bytes.Equal(got, payload) {
		t.Fatalf("stream round-trip mismatch")
	}
}

func TestStreamMultiJobRoundTrip(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 2})

	part1 := bytes.Repeat([]byte("alpha beta gamma delta "), 25000) // > one job-size target
	part2 := bytes.Repeat([]byte("epsilon zeta eta theta "), 10000)

	if _, err := m.CompressContinue(part1); err != nil {
		t.Fatalf("CompressContinue part1: %v", err)
	}
	if _, err := m.CompressContinue(part2); err != nil {
		t.Fatalf("CompressContinue part2: %v", err)
	}

	out := drainAll(t, m.End, 8192)
	got := inflateAll(t, out)
	want := append(append([]byte{}, part1...), part2...)
	if !bytes.Equal(got, want) {
		t.Fatalf("multi-job stream round-trip mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestStreamGrowsRingWhenManyJobsOutpaceDraining(t *testing.T) {
	// NbThreads=1 starts the job table at its minimum size (2 slots). Feed
	// enough data in a single CompressContinue call to create more jobs
	// than that without ever calling Flush in between, so doneJobID never
	// advances and nextJobID-doneJobID must outgrow the initial ring,
	// forcing createCompressionJob's RingFull guard to grow the table
	// instead of clobbering a live slot.
	m := newTestCtx(t, Params{NbThreads: 1, JobSize: 512 * 1024})

	chunk := bytes.Repeat([]byte("ring growth payload "), 30000) // ~586KiB
	payload := bytes.Repeat(chunk, 6)                            // several jobs' worth, ~3.4MiB total

	if _, err := m.CompressContinue(payload); err != nil {
		t.Fatalf("CompressContinue: %v", err)
	}
	if m.jobs.Size() <= 2 {
		t.Fatalf("expected job table to have grown past its initial size, got %d", m.jobs.Size())
	}

	out := drainAll(t, m.End, 8192)
	got := inflateAll(t, out)
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch after ring growth")
	}
}

func TestStreamEmptyFrame(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 1})

	out := drainAll(t, m.End, 64)
	got := inflateAll(t, out)
	if len(got) != 0 {
		t.Fatalf("expected empty frame, got %d bytes", len(got))
	}
}

func TestStreamWithChecksumAcrossSmallEndCalls(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 1, ChecksumFlag: true})

	payload := bytes.Repeat([]byte("checksum this stream "), 3000)
	if _, err := m.CompressContinue(payload); err != nil {
		t.Fatalf("CompressContinue: %v", err)
	}

	// Deliberately tiny dst so the trailing 4-byte checksum itself has to
	// be drained across multiple End calls.
	out := drainAll(t, m.End, 3)

	if len(out) < 4 {
		t.Fatalf("expected at least 4 trailing checksum bytes, got %d total", len(out))
	}
	body, sumBytes := out[:len(out)-4], out[len(out)-4:]

	got := inflateAll(t, body)
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch")
	}

	want := xxh.New(0)
	want.Update(payload)
	var gotSum uint32
	for i := 3; i >= 0; i-- {
		gotSum = gotSum<<8 | uint32(sumBytes[i])
	}
	if gotSum != uint32(want.Digest()) {
		t.Fatalf("checksum mismatch: got %x, want %x", gotSum, uint32(want.Digest()))
	}
}

func TestCompressStreamConvenienceWrapper(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 2})

	payload := bytes.Repeat([]byte("wrapper path "), 1000)
	dst := make([]byte, 4096)
	consumed, written, err := m.CompressStream(dst, payload)
	if err != nil {
		t.Fatalf("CompressStream: %v", err)
	}
	if consumed != len(payload) {
		t.Fatalf("expected consumed == %d, got %d", len(payload), consumed)
	}
	_ = written // a small frame may still be buffered; End below drains it

	out := append([]byte{}, dst[:written]...)
	out = append(out, drainAll(t, m.End, 4096)...)

	got := inflateAll(t, out)
	if !bytes.Equal(got, payload) {
		t.Fatalf("CompressStream round-trip mismatch")
	}
}

func TestFlushOnIdleContextIsNoop(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 1})
	n, hasMore, err := m.Flush(make([]byte, 64))
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 0 || hasMore {
		t.Fatalf("expected no-op flush on idle context, got n=%d hasMore=%v", n, hasMore)
	}
}

func TestEndAfterCloseErrors(t *testing.T) {
	m, err := New(Params{NbThreads: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := m.End(make([]byte, 64)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCompressContinueAfterEndErrors(t *testing.T) {
	m := newTestCtx(t, Params{NbThreads: 1})
	_ = drainAll(t, m.End, 64)

	if _, err := m.CompressContinue([]byte("late data")); err != ErrWrongStage {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
}
