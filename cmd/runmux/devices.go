// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/runmux/runmux/lib/cli"
	"github.com/runmux/runmux/lib/command"
	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/protocol"
)

func devicesCommand() *cli.Command {
	var configPath string
	var logFile string
	var verbose bool
	var wait time.Duration
	return &cli.Command{
		Name:    "devices",
		Summary: "List connected devices",
		Usage:   "runmux devices [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("devices", pflag.ContinueOnError)
			commonFlags(flags, &configPath, &logFile, &verbose)
			flags.DurationVar(&wait, "wait", 2*time.Second,
				"how long to let device discovery run before listing")
			return flags
		},
		Run: func(args []string) error {
			return listDevices(configPath, logFile, verbose, wait)
		},
	}
}

// listDevices spawns a bare daemon, asks it for the connected devices,
// prints them, and shuts the daemon down. Exits 1 when none are
// connected.
func listDevices(configPath, logFile string, verbose bool, wait time.Duration) error {
	spec, err := loadSpec(configPath)
	if err != nil {
		return err
	}
	// Unlike run, devices never takes over the terminal, so default
	// logging can go straight to stderr.
	logger := cli.NewCommandLogger(verbose).With("command", "devices")
	if logFile != "" {
		fileLogger, closeLogger, err := engineLogger(logFile, verbose)
		if err != nil {
			return err
		}
		defer closeLogger()
		logger = fileLogger
	}

	ctx := context.Background()
	shutdownLine, err := protocol.MarshalCommand(protocol.Command{Method: protocol.MethodDaemonShutdown, ID: 0})
	if err != nil {
		return err
	}

	sink := make(chan daemon.Event, 64)
	supervisor, err := daemon.Spawn(ctx, daemon.Config{
		Tool:             spec.Tool,
		Args:             []string{"daemon"},
		WorkingDirectory: spec.Project,
		MarkerFile:       spec.MarkerFile,
		ShutdownCommand:  shutdownLine,
		ShutdownGrace:    spec.Timeouts.ShutdownGrace.Std(),
		Logger:           logger,
	}, sink)
	if err != nil {
		return fmt.Errorf("starting %s daemon: %w", spec.Tool, err)
	}
	defer supervisor.Shutdown()

	sender := command.NewSender(command.SenderConfig{
		Tracker:   command.NewTracker(),
		Transport: supervisor,
		Timeout:   spec.Timeouts.Command.Std(),
		Logger:    logger,
	})
	go resolveResponses(sink, sender, logger)

	// Discovery is asynchronous: enable it, give it a moment, then ask.
	if _, err := sender.Send(ctx, protocol.MethodDeviceEnable, nil); err != nil {
		logger.Debug("device.enable failed", "error", err)
	}
	time.Sleep(wait)

	response, err := sender.Send(ctx, protocol.MethodDeviceGetDevices, nil)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	var found []protocol.DeviceDescription
	if err := json.Unmarshal(response.Result, &found); err != nil {
		return fmt.Errorf("decoding device list: %w", err)
	}
	if len(found) == 0 {
		fmt.Println("no devices connected")
		return &cli.ExitError{Code: 1}
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tPLATFORM")
	for _, device := range found {
		name := device.Name
		if device.Emulator {
			name += " (emulator)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", device.ID, name, device.Platform)
	}
	return writer.Flush()
}

// resolveResponses drains the supervisor sink, routing protocol
// responses to the sender. Everything else (console chatter, daemon
// events, stderr) goes to the debug log; this command has no session
// layer to surface it.
func resolveResponses(sink <-chan daemon.Event, sender *command.Sender, logger *slog.Logger) {
	for event := range sink {
		if event.Kind != daemon.EventStdout {
			continue
		}
		inner, ok := protocol.StripEnvelope(event.Line)
		if !ok {
			continue
		}
		message, ok := protocol.ParseMessage(inner)
		if !ok {
			continue
		}
		if message.Kind == protocol.KindResponse {
			sender.Resolve(message.Response)
		} else {
			logger.Debug("daemon event", "event", message.Event.Name)
		}
	}
}
