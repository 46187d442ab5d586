// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sizing centralizes the orchestrator's sizing constants and the
// small parameter-derived helpers spec.md §4.4.2 and §6 describe:
// block/job size bounds, window-log-from-level, and overlap sizing.
package sizing

import (
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
)

// BlockMax is the maximum uncompressed payload fed to the inner
// compressor per block (spec.md §2 glossary: "Block").
const BlockMax = 128 * 1024

// JobSizeMin is the floor below which a pledged frame size routes
// straight to the single-thread fallback (spec.md §4.4.2).
const JobSizeMin = 512 * 1024

// JobSizeMax returns the platform-dependent ceiling on a single job's
// payload: 512 MiB on 32-bit hosts, 2 GiB elsewhere (spec.md §6).
func JobSizeMax() int64 {
	if strconv.IntSize == 32 {
		return 512 * 1024 * 1024
	}
	return 2 * 1024 * 1024 * 1024
}

// WindowLog approximates the inner compressor's effective window size in
// bits for a given compression level. flate tops out at level 9
// (BestCompression); levels are bucketed into three window classes the
// way zstd's own strategy table buckets levels into window-size classes.
func WindowLog(level int) int {
	switch {
	case level <= 3:
		return 19 // 512 KiB
	case level <= 6:
		return 21 // 2 MiB
	default:
		return 23 // 8 MiB
	}
}

// MaxLevel is the highest compression level this module forwards to the
// inner compressor (flate.BestCompression).
const MaxLevel = 9

// DefaultThreadCount picks an advisory default worker count for callers
// (notably the CLI) that do not pin NbThreads explicitly. It prefers the
// logical CPU count reported by gopsutil (matching how
// internal/agent/autoscaler.go reasons about host capacity in the
// teacher module) and falls back to runtime.NumCPU() if the host query
// fails — gopsutil shells out to OS-specific counters that can be
// unavailable in minimal containers.
func DefaultThreadCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// OverlapSize returns the prefix-overlap byte count for a given window
// bits W and overlapLog in [0,9] (spec.md §4.1 "Overlap").
func OverlapSize(windowLog, overlapLog int) int {
	if overlapLog == 0 {
		return 0
	}
	if overlapLog > 9 {
		overlapLog = 9
	}
	shift := windowLog - (9 - overlapLog)
	if shift <= 0 {
		return 1
	}
	if shift >= 31 {
		shift = 31
	}
	return 1 << uint(shift)
}
