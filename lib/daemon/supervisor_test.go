// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// spawnShell starts /bin/sh -c script under a Supervisor with fast
// timeouts and returns the supervisor plus its event sink.
func spawnShell(t *testing.T, script string) (*Supervisor, chan Event) {
	t.Helper()

	sink := make(chan Event, 256)
	supervisor, err := Spawn(t.Context(), Config{
		Tool:            "sh",
		Args:            []string{"-c", script},
		ShutdownGrace:   2 * time.Second,
		ExitStatusGrace: 2 * time.Second,
	}, sink)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(supervisor.Shutdown)
	return supervisor, sink
}

// collectUntilExit drains sink until the EventExited arrives.
func collectUntilExit(t *testing.T, sink chan Event) []Event {
	t.Helper()

	var events []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-sink:
			events = append(events, event)
			if event.Kind == EventExited {
				return events
			}
		case <-deadline:
			t.Fatalf("no EventExited after %d events: %+v", len(events), events)
		}
	}
}

func TestSpawn_NoProjectMarker(t *testing.T) {
	_, err := Spawn(t.Context(), Config{
		Tool:             "sh",
		WorkingDirectory: t.TempDir(),
		MarkerFile:       "pubspec.yaml",
	}, make(chan Event, 1))
	if !errors.Is(err, ErrNoProject) {
		t.Fatalf("err = %v, want ErrNoProject", err)
	}
}

func TestSpawn_MarkerPresent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pubspec.yaml"), []byte("name: demo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := make(chan Event, 16)
	supervisor, err := Spawn(t.Context(), Config{
		Tool:             "sh",
		Args:             []string{"-c", "true"},
		WorkingDirectory: dir,
		MarkerFile:       "pubspec.yaml",
	}, sink)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	supervisor.Shutdown()
}

func TestSpawn_ToolNotFound(t *testing.T) {
	_, err := Spawn(t.Context(), Config{
		Tool: "definitely-not-a-real-tool-9f4c",
	}, make(chan Event, 1))
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestSupervisor_StdoutLinesThenExit(t *testing.T) {
	_, sink := spawnShell(t, `printf 'one\ntwo\n'`)

	events := collectUntilExit(t, sink)

	var lines []string
	for _, event := range events[:len(events)-1] {
		if event.Kind != EventStdout {
			t.Fatalf("unexpected event %+v", event)
		}
		lines = append(lines, event.Line)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v", lines)
	}

	exit := events[len(events)-1]
	if exit.ExitCode == nil || *exit.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", exit.ExitCode)
	}
}

func TestSupervisor_ExactlyOneExitEvent(t *testing.T) {
	_, sink := spawnShell(t, "true")

	collectUntilExit(t, sink)

	// Any further event after EventExited would be a duplicate exit
	// or a stray read.
	select {
	case event := <-sink:
		t.Fatalf("event after exit: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSupervisor_StderrDoesNotSynthesizeExit(t *testing.T) {
	_, sink := spawnShell(t, `echo oops >&2`)

	events := collectUntilExit(t, sink)

	sawStderr := false
	for _, event := range events {
		if event.Kind == EventStderr && event.Line == "oops" {
			sawStderr = true
		}
	}
	if !sawStderr {
		t.Errorf("no stderr event in %+v", events)
	}
	if events[len(events)-1].Kind != EventExited {
		t.Errorf("last event = %+v, want exit", events[len(events)-1])
	}
}

func TestSupervisor_NonZeroExitCode(t *testing.T) {
	_, sink := spawnShell(t, "exit 3")

	events := collectUntilExit(t, sink)
	exit := events[len(events)-1]
	if exit.ExitCode == nil || *exit.ExitCode != 3 {
		t.Errorf("exit code = %v, want 3", exit.ExitCode)
	}
}

func TestSupervisor_SendReachesStdin(t *testing.T) {
	// cat echoes stdin back to stdout; read one line then exit.
	supervisor, sink := spawnShell(t, "read line; echo \"got:$line\"")

	if err := supervisor.Send(`[{"method":"app.stop","id":1}]`); err != nil {
		t.Fatalf("Send: %v", err)
	}

	events := collectUntilExit(t, sink)
	found := false
	for _, event := range events {
		if event.Kind == EventStdout && event.Line == `got:[{"method":"app.stop","id":1}]` {
			found = true
		}
	}
	if !found {
		t.Errorf("echo not observed in %+v", events)
	}
}

func TestSupervisor_SendAfterExit(t *testing.T) {
	supervisor, sink := spawnShell(t, "true")
	collectUntilExit(t, sink)
	<-supervisor.Done()

	if err := supervisor.Send("[{}]"); !errors.Is(err, ErrInputClosed) {
		t.Errorf("err = %v, want ErrInputClosed", err)
	}
}

func TestSupervisor_ShutdownIdempotent(t *testing.T) {
	supervisor, sink := spawnShell(t, "true")
	go func() {
		for range sink {
		}
	}()

	supervisor.Shutdown()
	supervisor.Shutdown() // second call must neither error nor hang

	if supervisor.IsRunning() {
		t.Error("still running after Shutdown")
	}
}

func TestSupervisor_ShutdownKillsStubborn(t *testing.T) {
	sink := make(chan Event, 256)
	supervisor, err := Spawn(context.Background(), Config{
		Tool:          "sh",
		Args:          []string{"-c", "trap '' TERM; sleep 60"},
		ShutdownGrace: 200 * time.Millisecond,
	}, sink)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	go func() {
		for range sink {
		}
	}()

	start := time.Now()
	supervisor.Shutdown()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Shutdown took %v, expected prompt kill", elapsed)
	}
	if supervisor.IsRunning() {
		t.Error("still running after forced kill")
	}
}

func TestSupervisor_IsRunning(t *testing.T) {
	supervisor, sink := spawnShell(t, "sleep 60")
	if !supervisor.IsRunning() {
		t.Error("not running immediately after spawn")
	}
	supervisor.Kill()
	collectUntilExit(t, sink)
	<-supervisor.Done()
	if supervisor.IsRunning() {
		t.Error("running after kill and reap")
	}
}
