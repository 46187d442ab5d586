// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package throttle rate-limits compressed output, the way
// internal/agent's ThrottledWriter rate-limits the teacher module's
// upload stream — adapted here to sit between MTCtx.Flush and the
// destination writer instead of between a tar stream and the network.
package throttle

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps a single WaitN reservation so a large Write doesn't
// demand an unreasonably large token bucket burst.
const maxBurstSize = 256 * 1024

// Writer rate-limits writes to bytesPerSec using a token bucket.
type Writer struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// New wraps w with a rate limit of bytesPerSec bytes/second. If
// bytesPerSec <= 0, w is returned unwrapped (no throttling).
func New(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &Writer{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write implements io.Writer, splitting writes larger than the burst
// size into burst-sized pieces so tokens are consumed gradually.
func (tw *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}

		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
