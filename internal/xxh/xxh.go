// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package xxh wraps the 64-bit non-cryptographic rolling hash used to
// checksum a frame's raw input. The orchestrator treats this as an
// external collaborator: reset / update / digest, nothing more.
package xxh

import "github.com/cespare/xxhash/v2"

// State is a streaming 64-bit hash accumulator.
type State struct {
	h *xxhash.Digest
}

// New creates a hash state seeded with seed. xxhash.New returns an
// unseeded digest, so a non-zero seed is folded in via an initial Write
// of the seed's little-endian bytes — this keeps Reset semantics simple (just
// discard and recreate) while still letting callers vary the seed.
func New(seed uint64) *State {
	s := &State{h: xxhash.New()}
	s.Reset(seed)
	return s
}

// Reset discards all accumulated state and reseeds.
func (s *State) Reset(seed uint64) {
	s.h.Reset()
	if seed != 0 {
		var b [8]byte
		putUint64LE(b[:], seed)
		s.h.Write(b[:])
	}
}

// Update folds len(p) bytes into the running hash.
func (s *State) Update(p []byte) {
	if len(p) == 0 {
		return
	}
	s.h.Write(p)
}

// Digest returns the current 64-bit hash value without mutating state.
func (s *State) Digest() uint64 {
	return s.h.Sum64()
}

func putUint64LE(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
