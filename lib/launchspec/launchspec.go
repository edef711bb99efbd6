// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package launchspec loads the launch configuration: which build tool
// to drive, which project and devices to run, and the build-time
// parameters forwarded to each session.
//
// Configuration comes from a single file specified by the
// RUNMUX_CONFIG environment variable or a --config flag. There are no
// fallbacks or automatic discovery; missing config is an error, which
// keeps launches deterministic and auditable. The engine treats mode,
// flavor, and defines as opaque strings to forward — it never
// interprets them.
package launchspec

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Spec is the full launch configuration.
type Spec struct {
	// Tool is the build tool executable. Defaults to "flutter".
	Tool string `yaml:"tool"`

	// Project is the working directory sessions run in. Defaults to
	// the current directory.
	Project string `yaml:"project"`

	// MarkerFile must exist in Project for a spawn to proceed.
	// Defaults to "pubspec.yaml".
	MarkerFile string `yaml:"marker_file"`

	// Mode is the build mode (e.g., "debug", "profile"). Forwarded
	// opaquely.
	Mode string `yaml:"mode"`

	// Flavor is the build flavor. Forwarded opaquely; empty omits it.
	Flavor string `yaml:"flavor"`

	// Defines are build-time key/value defines, forwarded opaquely.
	Defines map[string]string `yaml:"defines"`

	// Devices are the launch targets offered in the device picker.
	Devices []DeviceSpec `yaml:"devices"`

	// Timeouts tunes engine deadlines.
	Timeouts Timeouts `yaml:"timeouts"`

	// Logs tunes the per-session log buffers.
	Logs LogTuning `yaml:"logs"`

	// Watch configures the auto-reload file watcher.
	Watch WatchSpec `yaml:"watch"`
}

// DeviceSpec describes one launch target.
type DeviceSpec struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
}

// Timeouts tunes engine deadlines.
type Timeouts struct {
	// Command bounds each correlated daemon command. Default 10s.
	Command Duration `yaml:"command"`

	// ShutdownGrace bounds the graceful phase of daemon shutdown
	// before a forced kill. Default 5s.
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

// LogTuning tunes the per-session log buffers.
type LogTuning struct {
	// Capacity bounds each session's log buffer. Default 5000.
	Capacity int `yaml:"capacity"`

	// BatchSize triggers an immediate flush of a session's pending
	// batch. Default 64.
	BatchSize int `yaml:"batch_size"`
}

// WatchSpec configures the auto-reload file watcher.
type WatchSpec struct {
	// Enabled turns the watcher on.
	Enabled bool `yaml:"enabled"`

	// Paths are the directories watched, relative to Project.
	// Defaults to ["lib"].
	Paths []string `yaml:"paths"`

	// Debounce coalesces change bursts into one reload. Default 300ms.
	Debounce Duration `yaml:"debounce"`
}

// Duration is a time.Duration that unmarshals from yaml strings like
// "10s" or "300ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the spec used when no overrides apply.
func Default() Spec {
	return Spec{
		Tool:       "flutter",
		Project:    ".",
		MarkerFile: "pubspec.yaml",
		Mode:       "debug",
		Timeouts: Timeouts{
			Command:       Duration(10 * time.Second),
			ShutdownGrace: Duration(5 * time.Second),
		},
		Logs: LogTuning{
			Capacity:  5000,
			BatchSize: 64,
		},
		Watch: WatchSpec{
			Paths:    []string{"lib"},
			Debounce: Duration(300 * time.Millisecond),
		},
	}
}

// Load reads the spec from the path in RUNMUX_CONFIG. Use LoadFile
// when the path comes from a flag.
func Load() (Spec, error) {
	path := os.Getenv("RUNMUX_CONFIG")
	if path == "" {
		return Spec{}, errors.New("RUNMUX_CONFIG environment variable not set")
	}
	return LoadFile(path)
}

// LoadFile reads and validates the spec at path. File values overlay
// the defaults.
func LoadFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	spec := Default()
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return spec, nil
}

// Validate checks the spec for contradictions the engine cannot work
// around.
func (s *Spec) Validate() error {
	if s.Tool == "" {
		return errors.New("tool must not be empty")
	}
	if s.Project == "" {
		return errors.New("project must not be empty")
	}
	if s.Timeouts.Command < 0 || s.Timeouts.ShutdownGrace < 0 {
		return errors.New("timeouts must not be negative")
	}
	if s.Logs.Capacity < 0 || s.Logs.BatchSize < 0 {
		return errors.New("log tuning values must not be negative")
	}
	seen := make(map[string]bool, len(s.Devices))
	for _, device := range s.Devices {
		if device.ID == "" {
			return errors.New("device id must not be empty")
		}
		if seen[device.ID] {
			return fmt.Errorf("duplicate device id %q", device.ID)
		}
		seen[device.ID] = true
	}
	return nil
}

// DaemonArgs returns the argument vector that launches the tool's
// daemon for one device, with the build parameters forwarded opaquely.
func (s *Spec) DaemonArgs(deviceID string) []string {
	args := []string{"run", "--machine", "-d", deviceID}
	if s.Mode != "" && s.Mode != "debug" {
		args = append(args, "--"+s.Mode)
	}
	if s.Flavor != "" {
		args = append(args, "--flavor", s.Flavor)
	}
	keys := make([]string, 0, len(s.Defines))
	for key := range s.Defines {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "--dart-define", key+"="+s.Defines[key])
	}
	return args
}
