// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger for CLI command
// operations. When stderr is a terminal, uses slog.TextHandler for
// human-readable output. When stderr is piped or redirected (CI,
// scripts, integration tests), uses slog.JSONHandler for
// machine-parseable output.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(false).With(
//	    "command", "run",
//	    "project", spec.Project,
//	)
func NewCommandLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return NewLoggerTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

// NewLoggerTo builds a logger on an explicit writer. The TUI uses this
// to route engine logs into a file instead of stderr, which the
// terminal UI owns while running.
func NewLoggerTo(w io.Writer, humanReadable bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if humanReadable {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
