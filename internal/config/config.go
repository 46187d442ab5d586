// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config loads cmd/mtcompress's YAML configuration, the way the
// teacher module's internal/config loads its agent/server YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents a compression job's full configuration, as loaded
// from a YAML file by the CLI's --config flag.
type Config struct {
	Compression CompressionInfo `yaml:"compression"`
	Logging     LoggingInfo     `yaml:"logging"`
	Throttle    ThrottleInfo    `yaml:"throttle"`
}

// CompressionInfo controls the MTCtx Params derived from this file.
type CompressionInfo struct {
	Threads    int    `yaml:"threads"`     // 0 = sizing.DefaultThreadCount()
	Level      int    `yaml:"level"`       // 0 = flate.DefaultCompression
	JobSize    string `yaml:"job_size"`    // e.g. "1mb"; 0/empty = derived from level
	JobSizeRaw int64  `yaml:"-"`
	OverlapLog int    `yaml:"overlap_log"` // 0..9, 0 = auto
	Checksum   bool   `yaml:"checksum"`
}

// LoggingInfo controls internal/logging.NewLogger.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ThrottleInfo optionally rate-limits compressed output via
// internal/throttle.
type ThrottleInfo struct {
	BytesPerSec    string `yaml:"bytes_per_sec"` // e.g. "10mb"; empty disables
	BytesPerSecRaw int64  `yaml:"-"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Compression.Threads < 0 {
		return fmt.Errorf("compression.threads must be >= 0, got %d", c.Compression.Threads)
	}
	if c.Compression.Level < -2 || c.Compression.Level > 9 {
		return fmt.Errorf("compression.level must be in [-2,9], got %d", c.Compression.Level)
	}
	if c.Compression.OverlapLog < 0 || c.Compression.OverlapLog > 9 {
		return fmt.Errorf("compression.overlap_log must be in [0,9], got %d", c.Compression.OverlapLog)
	}

	if c.Compression.JobSize != "" {
		n, err := ParseByteSize(c.Compression.JobSize)
		if err != nil {
			return fmt.Errorf("compression.job_size: %w", err)
		}
		c.Compression.JobSizeRaw = n
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Throttle.BytesPerSec != "" {
		n, err := ParseByteSize(c.Throttle.BytesPerSec)
		if err != nil {
			return fmt.Errorf("throttle.bytes_per_sec: %w", err)
		}
		c.Throttle.BytesPerSecRaw = n
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to a
// byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	// Longest suffix first so "mb" isn't mistakenly matched as "b".
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
