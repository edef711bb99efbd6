// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTo_HumanReadable(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLoggerTo(&buffer, true, slog.LevelInfo)
	logger.Info("daemon started", "pid", 4242)

	output := buffer.String()
	if !strings.Contains(output, "msg=\"daemon started\"") || !strings.Contains(output, "pid=4242") {
		t.Errorf("output = %q", output)
	}
}

func TestNewLoggerTo_MachineReadable(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLoggerTo(&buffer, false, slog.LevelInfo)
	logger.Info("daemon started", "pid", 4242)

	output := buffer.String()
	if !strings.Contains(output, `"msg":"daemon started"`) || !strings.Contains(output, `"pid":4242`) {
		t.Errorf("output = %q", output)
	}
}

func TestNewLoggerTo_LevelFiltersDebug(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLoggerTo(&buffer, false, slog.LevelInfo)
	logger.Debug("suppressed")

	if buffer.Len() != 0 {
		t.Errorf("output = %q, want empty", buffer.String())
	}
}

func TestNewCommandLogger_VerboseEnablesDebug(t *testing.T) {
	ctx := context.Background()

	if NewCommandLogger(false).Enabled(ctx, slog.LevelDebug) {
		t.Error("debug enabled without verbose")
	}
	if !NewCommandLogger(true).Enabled(ctx, slog.LevelDebug) {
		t.Error("debug not enabled with verbose")
	}
}
