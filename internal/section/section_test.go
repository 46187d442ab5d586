// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package section

import (
	"bytes"
	"compress/flate"
	"io"
	"testing"
)

func decompress(t *testing.T, compressed, dict []byte) []byte {
	t.Helper()
	var r io.ReadCloser
	if len(dict) > 0 {
		r = flate.NewReaderDict(bytes.NewReader(compressed), dict)
	} else {
		r = flate.NewReader(bytes.NewReader(compressed))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return out
}

func TestSingleSectionRoundTrip(t *testing.T) {
	w := NewWriter(DefaultLevel)
	if err := w.Begin(nil, false, 0, false); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	var out []byte
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	mid := len(payload) / 2
	var err error
	out, err = w.Continue(out, payload[:mid])
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	out, err = w.End(out, payload[mid:])
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	got := decompress(t, out, nil)
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestDictionaryRoundTrip(t *testing.T) {
	dict := bytes.Repeat([]byte("shared-history-"), 64)
	payload := append(append([]byte{}, dict...), []byte("section specific payload bytes")...)

	w := NewWriter(DefaultLevel)
	if err := w.Begin(dict, true, uint64(len(payload)), true); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	out, err := w.End(nil, []byte("section specific payload bytes"))
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	got := decompress(t, out, dict)
	if !bytes.Equal(got, []byte("section specific payload bytes")) {
		t.Fatalf("dictionary round trip mismatch: got %q", got)
	}
}

func TestZeroLengthContinueIsHarmless(t *testing.T) {
	w := NewWriter(DefaultLevel)
	if err := w.Begin(nil, false, 0, false); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	out, err := w.Continue(nil, nil)
	if err != nil {
		t.Fatalf("Continue with empty src: %v", err)
	}

	out, err = w.End(out, []byte("payload"))
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	got := decompress(t, out, nil)
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("mismatch: got %q", got)
	}
}

func TestContinueBeforeBeginErrors(t *testing.T) {
	w := NewWriter(DefaultLevel)
	if _, err := w.Continue(nil, []byte("x")); err == nil {
		t.Fatalf("expected error calling Continue before Begin")
	}
}

func TestBoundCoversStoredFallback(t *testing.T) {
	for _, n := range []int{0, 1, 1000, 65535, 65536, 1 << 20} {
		b := Bound(n)
		if b <= n && n > 0 {
			t.Fatalf("Bound(%d) = %d, expected > n for stored-block fallback margin", n, b)
		}
	}
}

func TestBoundApproximatelySuperadditive(t *testing.T) {
	const chunk = 256 * 1024
	sumOfBounds := Bound(chunk) + Bound(chunk)
	boundOfSum := Bound(2 * chunk)
	if sumOfBounds > boundOfSum {
		t.Fatalf("sum of per-chunk bounds (%d) exceeds bound of combined size (%d) at 256KiB granularity", sumOfBounds, boundOfSum)
	}
}
