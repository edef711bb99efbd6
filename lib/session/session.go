// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/runmux/runmux/lib/command"
	"github.com/runmux/runmux/lib/logring"
)

// ID identifies one session. IDs are opaque and monotonically assigned
// by a Registry instance; they are never reused within a Registry.
type ID int64

// Phase is the per-session lifecycle state.
type Phase int

const (
	// PhaseInitializing covers spawn through the daemon's app-started
	// notification.
	PhaseInitializing Phase = iota

	// PhaseRunning means the app is up and accepting commands.
	PhaseRunning

	// PhaseReloading means a reload or restart command is in flight.
	PhaseReloading

	// PhaseStopped is terminal: the daemon process exited. No
	// transition leaves it.
	PhaseStopped
)

// String returns the phase name for logging and rendering.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseReloading:
		return "reloading"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Device describes the launch target a session runs against.
type Device struct {
	// ID is the tool's device identifier (e.g., "macos",
	// "emulator-5554"). One active session per device ID.
	ID string

	// Name is the human-readable device name.
	Name string

	// Platform is the device platform (e.g., "darwin", "android-arm64").
	Platform string
}

// Stream identifies where a log entry originated.
type Stream int

const (
	// StreamConsole is free-form daemon stdout that was not protocol
	// traffic.
	StreamConsole Stream = iota

	// StreamStderr is daemon stderr output.
	StreamStderr

	// StreamApp is an app.log event payload.
	StreamApp

	// StreamDaemon is a daemon.logMessage event payload.
	StreamDaemon

	// StreamSystem is engine-generated (spawn, exit, command failures).
	StreamSystem
)

// Severity grades a log entry.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// LogEntry is one line in a session's log buffer.
type LogEntry struct {
	// Time is when the engine observed the line.
	Time time.Time

	// Stream is the entry's origin.
	Stream Stream

	// Severity grades the entry for rendering and filtering.
	Severity Severity

	// Text is the log line.
	Text string
}

// Session is one controlled daemon instance plus its UI-visible state.
// All fields are guarded by the single-consumer contract documented on
// the package.
type Session struct {
	id     ID
	device Device
	phase  Phase

	// appID is assigned by the daemon's app.start event; empty until
	// the app reports startup.
	appID string

	// progress is the transient app.progress message, cleared when
	// the operation finishes.
	progress string

	// process is attached after a successful spawn; nil while the
	// placeholder awaits its asynchronous spawn.
	process Process
	sender  *command.Sender

	logs *logring.Ring[LogEntry]

	// pendingLogs coalesces bursts of decoded lines; flushed to logs
	// as a unit on batch-size overflow or the next render tick.
	pendingLogs []LogEntry
}

// Process is the supervisor surface the registry needs.
// *daemon.Supervisor satisfies it.
type Process interface {
	// Send queues one serialized protocol line for the daemon's stdin.
	Send(line string) error

	// Shutdown runs the graceful-then-forced stop sequence and
	// returns once the process is reaped. Idempotent.
	Shutdown()

	// IsRunning reports process liveness without reaping.
	IsRunning() bool

	// PID is the operating system process ID.
	PID() int
}

// ID returns the session identifier.
func (s *Session) ID() ID { return s.id }

// Device returns the launch target.
func (s *Session) Device() Device { return s.device }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// AppID returns the daemon-assigned application identifier, or ""
// before the app reports startup.
func (s *Session) AppID() string { return s.appID }

// Progress returns the transient progress message, or "".
func (s *Session) Progress() string { return s.progress }

// Attached reports whether a process has been attached.
func (s *Session) Attached() bool { return s.process != nil }

// Logs returns a snapshot of the flushed log buffer, oldest first.
// Entries still coalescing in the pending batch are not included.
func (s *Session) Logs() []LogEntry { return s.logs.Snapshot() }

// DroppedLogs returns how many entries the bounded buffer has evicted.
func (s *Session) DroppedLogs() int { return s.logs.Dropped() }

// SenderHandle returns a lightweight handle for issuing requests from
// background tasks. Returns a zero Handle and false before attach.
func (s *Session) SenderHandle() (command.Handle, bool) {
	if s.sender == nil {
		return command.Handle{}, false
	}
	return s.sender.Handle(), true
}

// queueLog adds an entry to the pending batch. The caller (registry)
// decides when to flush.
func (s *Session) queueLog(entry LogEntry) {
	s.pendingLogs = append(s.pendingLogs, entry)
}

// flushLogs appends the pending batch to the buffer as a single unit,
// preserving order. Returns the number of entries flushed.
func (s *Session) flushLogs() int {
	if len(s.pendingLogs) == 0 {
		return 0
	}
	flushed := len(s.pendingLogs)
	s.logs.AppendBatch(s.pendingLogs)
	s.pendingLogs = s.pendingLogs[:0]
	return flushed
}
