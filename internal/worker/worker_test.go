// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package worker

import (
	"bytes"
	"compress/flate"
	"io"
	"sync"
	"testing"

	"github.com/nishisan-dev/mtcompress/internal/bufpool"
	"github.com/nishisan-dev/mtcompress/internal/cctxpool"
	"github.com/nishisan-dev/mtcompress/internal/job"
)

func newTestPools(nThreads, level int) (*bufpool.Pool, *cctxpool.Pool) {
	bp := bufpool.New(nThreads)
	bp.SetTargetSize(1 << 20)
	cp := cctxpool.New(nThreads, level)
	return bp, cp
}

func inflate(t *testing.T, compressed []byte) []byte {
	t.Helper()
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestRunSingleChunkFrame(t *testing.T) {
	bp, cp := newTestPools(2, flate.DefaultCompression)

	payload := bytes.Repeat([]byte("the quick brown fox "), 2000)
	var mu sync.Mutex
	j := &job.Job{
		Cond:          sync.NewCond(&mu),
		SrcStart:      payload,
		PrefixSize:    0,
		SrcSize:       len(payload),
		FullFrameSize: uint64(len(payload)),
		FirstChunk:    true,
		LastChunk:     true,
		Params:        job.Params{Level: flate.DefaultCompression},
		CCtxPool:      cp,
		BufPool:       bp,
	}

	Run(j)

	snap := j.Snapshot()
	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if !snap.JobCompleted {
		t.Fatalf("expected job to be marked completed")
	}
	if snap.Consumed != len(payload) {
		t.Fatalf("expected Consumed == %d, got %d", len(payload), snap.Consumed)
	}

	got := inflate(t, j.DstBuf.Start[:snap.CSize])
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestRunMultiChunkFrameWithPrefix(t *testing.T) {
	bp, cp := newTestPools(4, flate.DefaultCompression)

	chunk0 := bytes.Repeat([]byte("alpha beta gamma "), 8000) // > BlockMax to exercise the block loop
	chunk1Payload := bytes.Repeat([]byte("delta epsilon "), 4000)

	var mu sync.Mutex
	cond := sync.NewCond(&mu)

	j0 := &job.Job{
		Cond:          cond,
		SrcStart:      chunk0,
		SrcSize:       len(chunk0),
		FullFrameSize: uint64(len(chunk0) + len(chunk1Payload)),
		FirstChunk:    true,
		LastChunk:     false,
		Params:        job.Params{Level: flate.DefaultCompression},
		CCtxPool:      cp,
		BufPool:       bp,
	}
	Run(j0)
	snap0 := j0.Snapshot()
	if snap0.Err != nil {
		t.Fatalf("job0 error: %v", snap0.Err)
	}

	overlap := chunk0
	if len(overlap) > 32*1024 {
		overlap = overlap[len(overlap)-32*1024:]
	}
	combinedSrc := append(append([]byte{}, overlap...), chunk1Payload...)

	j1 := &job.Job{
		Cond:          cond,
		SrcStart:      combinedSrc,
		PrefixSize:    len(overlap),
		SrcSize:       len(chunk1Payload),
		FullFrameSize: uint64(len(chunk0) + len(chunk1Payload)),
		FirstChunk:    false,
		LastChunk:     true,
		Params:        job.Params{Level: flate.DefaultCompression, ForceMaxWindow: true},
		CCtxPool:      cp,
		BufPool:       bp,
	}
	Run(j1)
	snap1 := j1.Snapshot()
	if snap1.Err != nil {
		t.Fatalf("job1 error: %v", snap1.Err)
	}

	var full bytes.Buffer
	full.Write(j0.DstBuf.Start[:snap0.CSize])
	full.Write(j1.DstBuf.Start[:snap1.CSize])

	got := inflate(t, full.Bytes())
	want := append(append([]byte{}, chunk0...), chunk1Payload...)
	if !bytes.Equal(got, want) {
		t.Fatalf("multi-chunk round-trip mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestRunEmptyFrame(t *testing.T) {
	bp, cp := newTestPools(1, flate.DefaultCompression)

	var mu sync.Mutex
	j := &job.Job{
		Cond:          sync.NewCond(&mu),
		SrcStart:      nil,
		SrcSize:       0,
		FullFrameSize: 0,
		FirstChunk:    true,
		LastChunk:     true,
		Params:        job.Params{Level: flate.DefaultCompression},
		CCtxPool:      cp,
		BufPool:       bp,
	}

	Run(j)
	snap := j.Snapshot()
	if snap.Err != nil {
		t.Fatalf("unexpected error on empty frame: %v", snap.Err)
	}
	if !snap.JobCompleted {
		t.Fatalf("expected empty frame job to complete")
	}

	got := inflate(t, j.DstBuf.Start[:snap.CSize])
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(got))
	}
}

func TestRunWithTrainedDictionary(t *testing.T) {
	bp, cp := newTestPools(1, flate.DefaultCompression)

	dict := []byte("common header boilerplate shared across jobs")
	payload := bytes.Repeat([]byte("common header boilerplate payload "), 500)

	var mu sync.Mutex
	j := &job.Job{
		Cond:          sync.NewCond(&mu),
		SrcStart:      payload,
		SrcSize:       len(payload),
		FullFrameSize: uint64(len(payload)),
		FirstChunk:    true,
		LastChunk:     true,
		Params:        job.Params{Level: flate.DefaultCompression},
		CDict:         dict,
		CCtxPool:      cp,
		BufPool:       bp,
	}

	Run(j)
	snap := j.Snapshot()
	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}

	got := inflateWithDict(t, j.DstBuf.Start[:snap.CSize], dict)
	if !bytes.Equal(got, payload) {
		t.Fatalf("dictionary round-trip mismatch")
	}
}

func inflateWithDict(t *testing.T, compressed, dict []byte) []byte {
	t.Helper()
	r := flate.NewReaderDict(bytes.NewReader(compressed), dict)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate with dict: %v", err)
	}
	return out
}
