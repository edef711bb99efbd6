// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/runmux/runmux/lib/cli"
	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/launchspec"
	"github.com/runmux/runmux/lib/session"
	"github.com/runmux/runmux/lib/tui"
	"github.com/runmux/runmux/lib/watch"
)

// runOptions carries the run command's flag values.
type runOptions struct {
	configPath string
	deviceIDs  []string
	mode       string
	flavor     string
	watch      bool
	logFile    string
	verbose    bool
}

func runCommand() *cli.Command {
	var options runOptions
	return &cli.Command{
		Name:    "run",
		Summary: "Start one session per configured device",
		Usage:   "runmux run [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			commonFlags(flags, &options.configPath, &options.logFile, &options.verbose)
			flags.StringArrayVarP(&options.deviceIDs, "device", "d", nil,
				"device ID to run on (repeatable; overrides the spec's device list)")
			flags.StringVar(&options.mode, "mode", "", "build mode override")
			flags.StringVar(&options.flavor, "flavor", "", "build flavor override")
			flags.BoolVar(&options.watch, "watch", false, "hot reload on source changes")
			return flags
		},
		Run: func(args []string) error {
			return runSessions(options)
		},
	}
}

// runSessions wires the engine together and hands the terminal to the
// interface loop until quit.
func runSessions(options runOptions) error {
	spec, err := loadSpec(options.configPath)
	if err != nil {
		return err
	}
	if options.mode != "" {
		spec.Mode = options.mode
	}
	if options.flavor != "" {
		spec.Flavor = options.flavor
	}
	if options.watch {
		spec.Watch.Enabled = true
	}
	if len(options.deviceIDs) > 0 {
		spec.Devices = spec.Devices[:0]
		for _, id := range options.deviceIDs {
			spec.Devices = append(spec.Devices, launchspec.DeviceSpec{ID: id})
		}
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	if len(spec.Devices) == 0 {
		return fmt.Errorf("no devices configured; add devices to the launch spec or pass --device")
	}

	logger, closeLogger, err := engineLogger(options.logFile, options.verbose)
	if err != nil {
		return err
	}
	defer closeLogger()

	registry := session.NewRegistry(session.Config{
		MaxSessions:    len(spec.Devices),
		LogCapacity:    spec.Logs.Capacity,
		LogBatchSize:   spec.Logs.BatchSize,
		CommandTimeout: spec.Timeouts.Command.Std(),
		Logger:         logger,
	})
	// Backstop for an abnormal interface exit. After a normal quit the
	// registry is already empty and this is a no-op.
	defer registry.Shutdown()

	devices := make([]session.Device, 0, len(spec.Devices))
	for _, device := range spec.Devices {
		devices = append(devices, session.Device{
			ID:       device.ID,
			Name:     device.Name,
			Platform: device.Platform,
		})
	}

	daemonConfig := func(device session.Device) daemon.Config {
		return daemon.Config{
			Tool:             spec.Tool,
			Args:             spec.DaemonArgs(device.ID),
			WorkingDirectory: spec.Project,
			MarkerFile:       spec.MarkerFile,
			ShutdownGrace:    spec.Timeouts.ShutdownGrace.Std(),
			Logger:           logger,
		}
	}

	var triggers <-chan struct{}
	if spec.Watch.Enabled {
		watcher, err := watch.New(watch.Config{
			Root:       spec.Project,
			Paths:      spec.Watch.Paths,
			Extensions: []string{".dart"},
			Debounce:   spec.Watch.Debounce.Std(),
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
		triggers = watcher.Triggers()
	}

	model := tui.NewModel(tui.Config{
		Registry:      registry,
		Devices:       devices,
		DaemonConfig:  daemonConfig,
		WatchTriggers: triggers,
		Logger:        logger,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}
