// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/runmux/runmux/lib/cli"
	"github.com/runmux/runmux/lib/launchspec"
	"github.com/runmux/runmux/lib/version"
)

// rootCommand builds the complete runmux command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "runmux",
		Description: `Runmux: a terminal multiplexer for build-tool run daemons.

Start one run daemon per configured device and drive them all from a
single terminal: hot reload, restart, and stop each session while its
logs stream side by side.`,
		Subcommands: []*cli.Command{
			runCommand(),
			devicesCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("runmux %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run on every device in the launch spec",
				Command:     "runmux run --config runmux.yaml",
			},
			{
				Description: "Run on two specific devices with auto reload",
				Command:     "runmux run -d macos -d emulator-5554 --watch",
			},
			{
				Description: "List connected devices",
				Command:     "runmux devices",
			},
		},
	}
}

// loadSpec resolves the launch spec: an explicit path wins, otherwise
// the RUNMUX_CONFIG environment variable names one.
func loadSpec(path string) (launchspec.Spec, error) {
	if path != "" {
		return launchspec.LoadFile(path)
	}
	return launchspec.Load()
}

// engineLogger builds the logger for engine internals. The terminal UI
// owns stderr while running, so engine logs go to a file, or nowhere.
func engineLogger(path string, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if path == "" {
		return cli.NewLoggerTo(io.Discard, false, level), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return cli.NewLoggerTo(file, false, level), func() { file.Close() }, nil
}

// commonFlags registers the flags shared by run and devices.
func commonFlags(flags *pflag.FlagSet, configPath, logFile *string, verbose *bool) {
	flags.StringVar(configPath, "config", "", "launch spec path (default: $RUNMUX_CONFIG)")
	flags.StringVar(logFile, "log-file", "", "engine log destination (default: discard)")
	flags.BoolVarP(verbose, "verbose", "v", false, "debug-level engine logs")
}
