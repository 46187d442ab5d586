// Copyright (c) 2026 The mtcompress Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command mtcompress compresses a file (or stdin) using a pool of
// worker goroutines, the way zstd's CLI drives ZSTDMT under the hood.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nishisan-dev/mtcompress"
	"github.com/nishisan-dev/mtcompress/internal/config"
	"github.com/nishisan-dev/mtcompress/internal/logging"
	"github.com/nishisan-dev/mtcompress/internal/progress"
	"github.com/nishisan-dev/mtcompress/internal/throttle"
)

const readChunkSize = 1 << 20 // 1 MiB

func main() {
	input := flag.String("i", "-", "input path, or - for stdin")
	output := flag.String("o", "-", "output path, or - for stdout")
	configPath := flag.String("config", "", "optional YAML config file")
	threads := flag.Int("threads", 0, "worker thread count (0 = auto)")
	level := flag.Int("level", 0, "compression level (0 = default)")
	jobSize := flag.String("job-size", "", "target job size, e.g. 4mb (empty = auto)")
	overlapLog := flag.Int("overlap-log", 0, "dictionary overlap log 0-9 (0 = auto)")
	checksum := flag.Bool("checksum", false, "append a trailing content checksum")
	throttleRate := flag.String("throttle", "", "cap output rate, e.g. 10mb (empty = unlimited)")
	showProgress := flag.Bool("progress", false, "show a progress line on stderr")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: json, text")
	flag.Parse()

	params := mtcompress.Params{
		NbThreads:    *threads,
		Level:        *level,
		OverlapLog:   *overlapLog,
		ChecksumFlag: *checksum,
	}
	throttleBytesPerSec := int64(0)

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mtcompress: loading config: %v\n", err)
			os.Exit(1)
		}
		if params.NbThreads == 0 {
			params.NbThreads = cfg.Compression.Threads
		}
		if params.Level == 0 {
			params.Level = cfg.Compression.Level
		}
		if params.OverlapLog == 0 {
			params.OverlapLog = cfg.Compression.OverlapLog
		}
		if !params.ChecksumFlag {
			params.ChecksumFlag = cfg.Compression.Checksum
		}
		if *jobSize == "" && cfg.Compression.JobSizeRaw > 0 {
			params.JobSize = int(cfg.Compression.JobSizeRaw)
		}
		if *logLevel == "info" && cfg.Logging.Level != "" {
			*logLevel = cfg.Logging.Level
		}
		if *logFormat == "json" && cfg.Logging.Format != "" {
			*logFormat = cfg.Logging.Format
		}
		throttleBytesPerSec = cfg.Throttle.BytesPerSecRaw
	}

	if *jobSize != "" {
		n, err := config.ParseByteSize(*jobSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mtcompress: --job-size: %v\n", err)
			os.Exit(1)
		}
		params.JobSize = int(n)
	}
	if *throttleRate != "" {
		n, err := config.ParseByteSize(*throttleRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mtcompress: --throttle: %v\n", err)
			os.Exit(1)
		}
		throttleBytesPerSec = n
	}

	logger := logging.NewLogger(*logLevel, *logFormat)
	params.Logger = logger

	if err := run(params, *input, *output, throttleBytesPerSec, *showProgress); err != nil {
		logger.Error("compression failed", "error", err)
		os.Exit(1)
	}
}

func run(params mtcompress.Params, inputPath, outputPath string, throttleBytesPerSec int64, showProgress bool) error {
	in, closeIn, err := openInput(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer closeIn()

	out, closeOut, err := openOutput(outputPath)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer closeOut()

	var dst io.Writer = out
	if throttleBytesPerSec > 0 {
		dst = throttle.New(context.Background(), out, throttleBytesPerSec)
	}

	var reporter *progress.Reporter
	if showProgress {
		size := inputSize(inputPath)
		reporter = progress.NewReporter(inputPath, size)
		defer reporter.Stop()
	}

	mtctx, err := mtcompress.New(params)
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer mtctx.Close()

	return streamCompress(mtctx, in, dst, reporter)
}

func streamCompress(mtctx *mtcompress.MTCtx, in io.Reader, out io.Writer, reporter *progress.Reporter) error {
	inBuf := make([]byte, readChunkSize)
	outBuf := make([]byte, readChunkSize)

	for {
		n, readErr := in.Read(inBuf)
		if n > 0 {
			consumed, err := mtctx.CompressContinue(inBuf[:n])
			if err != nil {
				return fmt.Errorf("compressing: %w", err)
			}
			if reporter != nil {
				reporter.AddIngested(int64(consumed))
			}
			if err := drain(mtctx, outBuf, out, reporter, false); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading input: %w", readErr)
		}
	}

	return drain(mtctx, outBuf, out, reporter, true)
}

func drain(mtctx *mtcompress.MTCtx, buf []byte, out io.Writer, reporter *progress.Reporter, final bool) error {
	for {
		var written int
		var hasMore bool
		var err error
		if final {
			written, hasMore, err = mtctx.End(buf)
		} else {
			written, hasMore, err = mtctx.Flush(buf)
		}
		if err != nil {
			return fmt.Errorf("draining output: %w", err)
		}
		if written > 0 {
			if _, werr := out.Write(buf[:written]); werr != nil {
				return fmt.Errorf("writing output: %w", werr)
			}
			if reporter != nil {
				reporter.AddProduced(int64(written))
			}
		}
		if !hasMore {
			return nil
		}
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" || path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func inputSize(path string) int64 {
	if path == "-" || path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
