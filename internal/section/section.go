// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package section implements the orchestrator's inner, single-section
// compressor contract (§6 of SPEC_FULL.md): create / begin / continue /
// end / invalidateRepCodes / compressBound, backed by
// github.com/klauspost/compress/flate.
//
// The orchestrator treats a Writer as a black box: it knows nothing about
// deflate blocks, only that Begin may consume a raw-content dictionary,
// Continue appends zero or more compressed bytes per call, and End writes
// the section's final block marker.
package section

import (
	"fmt"

	"github.com/klauspost/compress/flate"
)

// DefaultLevel mirrors flate.DefaultCompression.
const DefaultLevel = flate.DefaultCompression

// appendTarget is the io.Writer a Writer's underlying flate.Writer emits
// into. It is a thin indirection so each Continue/End call can redirect
// output at a caller-supplied destination slice without recreating the
// flate.Writer (which would lose the dictionary established at Begin).
type appendTarget struct {
	dst []byte
}

func (a *appendTarget) Write(p []byte) (int, error) {
	a.dst = append(a.dst, p...)
	return len(p), nil
}

// Writer is one reusable compressor context. A single Writer is meant to
// live inside a pooled CCtx and be re-Begin'd across many sections over
// its lifetime.
type Writer struct {
	level  int
	target *appendTarget
	fw     *flate.Writer
}

// NewWriter creates a Writer at the given flate compression level. No
// allocation of the inner flate.Writer happens until Begin.
func NewWriter(level int) *Writer {
	return &Writer{level: level, target: &appendTarget{}}
}

// Begin starts a new section. dict is either a real (trained) dictionary
// or, when rawContent is true, the raw bytes of the previous section's
// tail presented as "content-only" context (spec.md §4.3 step 3). pledged
// and forceMaxWindow are accepted for interface parity with the spec's
// contract; flate has no pledged-size preallocation or explicit window
// parameter to forward them to, so they are ignored by this backend — a future inner compressor with real window controls
// (e.g. a zstd-style one) would consume them here without any change to
// the worker that calls Begin.
func (w *Writer) Begin(dict []byte, rawContent bool, pledged uint64, forceMaxWindow bool) error {
	_ = rawContent
	_ = pledged
	_ = forceMaxWindow

	w.target.dst = w.target.dst[:0]
	var fw *flate.Writer
	var err error
	if len(dict) > 0 {
		fw, err = flate.NewWriterDict(w.target, w.level, dict)
	} else {
		fw, err = flate.NewWriter(w.target, w.level)
	}
	if err != nil {
		return fmt.Errorf("section: begin: %w", err)
	}
	w.fw = fw
	return nil
}

// Continue feeds src through the compressor and appends any bytes it
// emits to dst, returning the combined slice. A zero-length src is valid
// (the spec's "header overwrite" dummy call on non-first chunks, and the
// zero-size last block some last chunks require) and simply flushes
// whatever the compressor has buffered. Because flate carries no
// per-section frame header of its own, that is only the empty sync-flush
// block every Flush writes; the call is still issued so the worker's
// control flow matches the spec verbatim and a future header-bearing
// backend slots in unchanged.
func (w *Writer) Continue(dst []byte, src []byte) ([]byte, error) {
	if w.fw == nil {
		return dst, fmt.Errorf("section: continue called before begin")
	}
	w.target.dst = dst
	if len(src) > 0 {
		if _, err := w.fw.Write(src); err != nil {
			return w.target.dst, fmt.Errorf("section: continue: write: %w", err)
		}
	}
	if err := w.fw.Flush(); err != nil {
		return w.target.dst, fmt.Errorf("section: continue: flush: %w", err)
	}
	return w.target.dst, nil
}

// End feeds the final payload bytes (possibly none) and writes the
// section's last-block marker, appending to dst.
func (w *Writer) End(dst []byte, src []byte) ([]byte, error) {
	if w.fw == nil {
		return dst, fmt.Errorf("section: end called before begin")
	}
	w.target.dst = dst
	if len(src) > 0 {
		if _, err := w.fw.Write(src); err != nil {
			return w.target.dst, fmt.Errorf("section: end: write: %w", err)
		}
	}
	if err := w.fw.Close(); err != nil {
		return w.target.dst, fmt.Errorf("section: end: close: %w", err)
	}
	out := w.target.dst
	w.fw = nil
	return out, nil
}

// InvalidateRepCodes discards any implicit assumption that future matches
// may reference history before the explicit dictionary passed to Begin.
// flate's dictionary is exactly the bytes handed to NewWriterDict — it
// never implicitly grows to cover bytes outside that window — so there is
// nothing further to invalidate; this is a deliberate no-op kept to
// satisfy the inner-compressor contract's shape.
func (w *Writer) InvalidateRepCodes() {}

// Bound returns a conservative worst-case output size for an n-byte
// payload compressed in a single section. flate has no exported bound
// helper, so this hand-rolls one: n plus a proportional 1/256 margin
// (deflate's real stored-block worst case is far smaller — about 5 bytes
// per 65535-byte block — so this has ample headroom) and, only for
// sub-4KiB inputs, a small fixed cushion.
//
// The proportional form (no additive constant once n >= 4096) is
// deliberate: bound(A) + bound(B) == (A+B) + (A/256 + B/256), and integer
// floor division is superadditive (floor(x)+floor(y) <= floor(x+y)), so
// bound(A) + bound(B) <= bound(A+B) for any A, B >= 4096 — exactly the
// superadditivity property the orchestrator's direct-to-dst optimization
// relies on (spec.md §4.4.1), and the reason it only needs to hold once
// avg chunk size reaches the 256 KiB floor the spec guarantees.
func Bound(n int) int {
	if n <= 0 {
		return 16
	}
	if n < 4096 {
		return n + 16
	}
	return n + n/256
}
