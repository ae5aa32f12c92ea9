// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ambient bootstraps the process-wide logger: zerolog as the structured logger, lumberjack for
// rotated file output, and a TTY check picking a human console writer
// over JSON lines for interactive versus service runs.
package ambient

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Configure.
type Options struct {
	// LogPath, if non-empty, rotates log lines through lumberjack
	// in addition to stderr.
	LogPath string
	Debug   bool
}

// Configure installs the global zerolog logger and returns it. Callers
// tag messages with a bracketed component name (`[SCHEDULER]`,
// `[DOWNLOAD]`, `[BSA]`, …) via
// logger.With().Str("component", name).Logger().
func Configure(opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if isTerminal(os.Stderr) && opts.LogPath == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		writers = append(writers, os.Stderr)
	}

	if opts.LogPath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    50, // MiB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
