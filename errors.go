// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mtcompress

import (
	"errors"
	"strconv"
)

// Sentinel errors returned by MTCtx operations.
var (
	ErrInvalidParams = errors.New("mtcompress: invalid parameters")
	ErrMemory        = errors.New("mtcompress: allocation failed")
	ErrWrongStage    = errors.New("mtcompress: operation not valid in current stage")
	ErrDstTooSmall   = errors.New("mtcompress: destination buffer too small")
	ErrClosed        = errors.New("mtcompress: context already closed")
)

// jobError wraps the first error observed across a frame's jobs so
// callers can see which job failed.
type jobError struct {
	jobID uint64
	err   error
}

func (e *jobError) Error() string {
	return "mtcompress: job " + strconv.FormatUint(e.jobID, 10) + ": " + e.err.Error()
}

func (e *jobError) Unwrap() error { return e.err }
