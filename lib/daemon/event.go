// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

// EventKind classifies supervisor events.
type EventKind int

const (
	// EventStdout is one line read from the daemon's standard output.
	EventStdout EventKind = iota

	// EventStderr is one line read from the daemon's standard error.
	EventStderr

	// EventExited reports process exit. Emitted exactly once per
	// process lifetime, by the stdout loop, when the output stream
	// closes.
	EventExited

	// EventSpawnFailed reports that an asynchronous spawn attempt
	// never produced a process. Emitted by the session layer, not by
	// a Supervisor (a Supervisor only exists after a successful
	// spawn).
	EventSpawnFailed
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventExited:
		return "exited"
	case EventSpawnFailed:
		return "spawn_failed"
	default:
		return "unknown"
	}
}

// Event is the closed union a Supervisor delivers to its owner.
type Event struct {
	// Kind indicates which fields are meaningful.
	Kind EventKind

	// Line is the raw output line for EventStdout and EventStderr.
	Line string

	// ExitCode is the process exit code for EventExited. Nil when the
	// stream closed before an exit status was observed.
	ExitCode *int

	// SpawnErr is the failure reason for EventSpawnFailed.
	SpawnErr error
}
