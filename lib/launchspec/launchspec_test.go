// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package launchspec

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runmux.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	spec := Default()
	if spec.Tool != "flutter" {
		t.Errorf("tool = %q", spec.Tool)
	}
	if spec.MarkerFile != "pubspec.yaml" {
		t.Errorf("marker = %q", spec.MarkerFile)
	}
	if spec.Timeouts.Command.Std() != 10*time.Second {
		t.Errorf("command timeout = %v", spec.Timeouts.Command.Std())
	}
	if spec.Logs.BatchSize != 64 {
		t.Errorf("batch size = %d", spec.Logs.BatchSize)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv("RUNMUX_CONFIG", "")
	os.Unsetenv("RUNMUX_CONFIG")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RUNMUX_CONFIG not set")
	}
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
tool: fvm
mode: profile
flavor: staging
defines:
  API_HOST: dev.example.com
devices:
  - id: macos
    name: macOS
    platform: darwin
timeouts:
  command: 30s
watch:
  enabled: true
  debounce: 1s
`)
	spec, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if spec.Tool != "fvm" || spec.Mode != "profile" || spec.Flavor != "staging" {
		t.Errorf("spec = %+v", spec)
	}
	// Unspecified fields keep their defaults.
	if spec.MarkerFile != "pubspec.yaml" {
		t.Errorf("marker = %q", spec.MarkerFile)
	}
	if spec.Timeouts.Command.Std() != 30*time.Second {
		t.Errorf("command timeout = %v", spec.Timeouts.Command.Std())
	}
	if spec.Timeouts.ShutdownGrace.Std() != 5*time.Second {
		t.Errorf("shutdown grace = %v", spec.Timeouts.ShutdownGrace.Std())
	}
	if !spec.Watch.Enabled || spec.Watch.Debounce.Std() != time.Second {
		t.Errorf("watch = %+v", spec.Watch)
	}
	if len(spec.Devices) != 1 || spec.Devices[0].ID != "macos" {
		t.Errorf("devices = %+v", spec.Devices)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeConfig(t, "timeouts:\n  command: soon\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "soon") {
		t.Fatalf("err = %v, want duration parse failure", err)
	}
}

func TestValidate_DuplicateDevice(t *testing.T) {
	spec := Default()
	spec.Devices = []DeviceSpec{{ID: "macos"}, {ID: "macos"}}
	if err := spec.Validate(); err == nil {
		t.Fatal("duplicate device id accepted")
	}
}

func TestValidate_EmptyTool(t *testing.T) {
	spec := Default()
	spec.Tool = ""
	if err := spec.Validate(); err == nil {
		t.Fatal("empty tool accepted")
	}
}

func TestDaemonArgs_ForwardsOpaquely(t *testing.T) {
	spec := Default()
	spec.Mode = "profile"
	spec.Flavor = "staging"
	spec.Defines = map[string]string{"B_KEY": "2", "A_KEY": "1"}

	got := spec.DaemonArgs("emulator-5554")
	want := []string{
		"run", "--machine", "-d", "emulator-5554",
		"--profile", "--flavor", "staging",
		"--dart-define", "A_KEY=1",
		"--dart-define", "B_KEY=2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestDaemonArgs_DebugModeOmitted(t *testing.T) {
	spec := Default()
	got := spec.DaemonArgs("macos")
	if !reflect.DeepEqual(got, []string{"run", "--machine", "-d", "macos"}) {
		t.Errorf("args = %v", got)
	}
}
