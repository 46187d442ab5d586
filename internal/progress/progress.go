// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package progress renders a terminal progress line for a long-running
// compression, the way internal/agent's ProgressReporter renders backup
// progress in the teacher module — adapted here from object/retry
// counters to compressed-throughput counters.
package progress

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Reporter displays compression progress on stderr: bytes ingested,
// bytes produced, ratio, throughput and elapsed time.
type Reporter struct {
	name string

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	totalBytes int64

	startTime time.Time
	done      chan struct{}
}

// NewReporter creates a reporter and starts its render loop. totalBytes
// may be 0 when the input size isn't known ahead of time (streaming
// stdin), in which case a spinner is shown instead of a percentage bar.
func NewReporter(name string, totalBytes int64) *Reporter {
	r := &Reporter{
		name:       name,
		totalBytes: totalBytes,
		startTime:  time.Now(),
		done:       make(chan struct{}),
	}
	go r.renderLoop()
	return r
}

// AddIngested records bytes of uncompressed input consumed so far.
func (r *Reporter) AddIngested(n int64) {
	r.bytesIn.Add(n)
}

// AddProduced records bytes of compressed output emitted so far.
func (r *Reporter) AddProduced(n int64) {
	r.bytesOut.Add(n)
}

// Stop halts the render loop and prints the final line.
func (r *Reporter) Stop() {
	close(r.done)
	r.render(true)
}

func (r *Reporter) renderLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.render(false)
		}
	}
}

func (r *Reporter) render(final bool) {
	in := r.bytesIn.Load()
	out := r.bytesOut.Load()
	elapsed := time.Since(r.startTime)

	var speed float64
	if s := elapsed.Seconds(); s > 0.1 {
		speed = float64(in) / s
	}

	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}

	barWidth := 30
	var bar string
	if r.totalBytes > 0 {
		pct := float64(in) / float64(r.totalBytes)
		if pct > 1.0 {
			pct = 1.0
		}
		filled := int(pct * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar = strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	} else {
		pos := int(elapsed.Seconds()*2) % barWidth
		bar = strings.Repeat("-", pos) + "#" + strings.Repeat("-", barWidth-pos-1)
	}

	line := fmt.Sprintf("\r[%s] %s  %s -> %s (%.2fx)  │  %s/s  │  %s",
		r.name, bar, formatBytes(in), formatBytes(out), ratio,
		formatBytes(int64(speed)), formatDuration(elapsed))

	if len(line) < 100 {
		line += strings.Repeat(" ", 100-len(line))
	}

	if final {
		fmt.Fprintf(os.Stderr, "%s\n", line)
	} else {
		fmt.Fprint(os.Stderr, line)
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
