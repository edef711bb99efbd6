// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runmux/runmux/lib/clock"
	"github.com/runmux/runmux/lib/command"
	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/logring"
	"github.com/runmux/runmux/lib/protocol"
)

// Registry operation errors.
var (
	// ErrDeviceBusy means the device already has an active session.
	ErrDeviceBusy = errors.New("device already has a session")

	// ErrTooManySessions means the session cap was reached.
	ErrTooManySessions = errors.New("session limit reached")

	// ErrUnknownSession means the session ID is not (or no longer)
	// registered.
	ErrUnknownSession = errors.New("unknown session")

	// ErrNotAttached means the session's spawn has not completed.
	ErrNotAttached = errors.New("session has no attached process")

	// ErrNoApp means the daemon has not reported app startup yet, so
	// there is no appId to scope the command to.
	ErrNoApp = errors.New("no app running")
)

// Config configures a Registry.
type Config struct {
	// MaxSessions caps concurrently registered sessions. Defaults to 8.
	MaxSessions int

	// LogCapacity bounds each session's log buffer. Defaults to 5000.
	LogCapacity int

	// LogBatchSize triggers an immediate flush when a session's
	// pending batch reaches it. Tuning knob, not a correctness
	// contract; the render tick flushes smaller batches. Defaults
	// to 64.
	LogBatchSize int

	// EventQueueSize bounds the merged consumer stream and each
	// session's supervisor sink. Defaults to 256.
	EventQueueSize int

	// CommandTimeout bounds each correlated command. Defaults to the
	// sender's default.
	CommandTimeout time.Duration

	// Clock is the time source. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives routing diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 8
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = 5000
	}
	if c.LogBatchSize <= 0 {
		c.LogBatchSize = 64
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 256
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// EventKind classifies consumer-stream events.
type EventKind int

const (
	// EventDaemon wraps a daemon.Event from a session's supervisor.
	EventDaemon EventKind = iota

	// EventAttached reports that an asynchronous spawn completed; the
	// consumer loop must call AttachProcess.
	EventAttached
)

// TaggedEvent is one entry on the merged consumer stream, tagged with
// the originating session.
type TaggedEvent struct {
	// SessionID identifies the session the event belongs to.
	SessionID ID

	// Kind indicates which fields are meaningful.
	Kind EventKind

	// Daemon is set for EventDaemon.
	Daemon daemon.Event

	// Process and Sender are set for EventAttached.
	Process Process
	Sender  *command.Sender
}

// Change summarizes what HandleEvent mutated, so the consumer can
// decide what to re-render or surface.
type Change struct {
	// Session is the affected session ID.
	Session ID

	// Discarded means the session no longer existed and the event was
	// dropped.
	Discarded bool

	// Removed means the session was removed (spawn failure).
	Removed bool

	// SpawnErr is the spawn failure reason when Removed is set.
	SpawnErr error

	// PhaseChanged means the session's phase transitioned.
	PhaseChanged bool

	// LogsFlushed means the session's visible log buffer grew.
	LogsFlushed bool
}

// Registry owns the session collection and the merged event stream.
type Registry struct {
	config Config

	// nextID is scoped to this Registry instance so multiple engines
	// (e.g., in tests) do not interfere.
	nextID atomic.Int64

	// tracker is the correlation table shared by every session's
	// sender.
	tracker *command.Tracker

	sessions map[ID]*Session
	byDevice map[string]ID

	events chan TaggedEvent
}

// NewRegistry returns an empty registry.
func NewRegistry(config Config) *Registry {
	config.applyDefaults()
	return &Registry{
		config:   config,
		tracker:  command.NewTracker(),
		sessions: make(map[ID]*Session),
		byDevice: make(map[string]ID),
		events:   make(chan TaggedEvent, config.EventQueueSize),
	}
}

// Events is the merged inbound stream. Exactly one consumer loop must
// drain it and feed each event to HandleEvent.
func (r *Registry) Events() <-chan TaggedEvent { return r.events }

// Tracker returns the shared correlation table.
func (r *Registry) Tracker() *command.Tracker { return r.tracker }

// Get returns the session, or nil when unknown.
func (r *Registry) Get(id ID) *Session { return r.sessions[id] }

// List returns the sessions ordered by ID (creation order).
func (r *Registry) List() []*Session {
	ordered := make([]*Session, 0, len(r.sessions))
	for id := ID(1); id <= ID(r.nextID.Load()); id++ {
		if session, ok := r.sessions[id]; ok {
			ordered = append(ordered, session)
		}
	}
	return ordered
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int { return len(r.sessions) }

// CreateSession allocates a placeholder session for the device.
// Spawning is asynchronous and happens after this returns (see Spawn);
// until AttachProcess the session has no process.
func (r *Registry) CreateSession(device Device) (*Session, error) {
	if existing, busy := r.byDevice[device.ID]; busy {
		return nil, fmt.Errorf("%w: device %s (session %d)", ErrDeviceBusy, device.ID, existing)
	}
	if len(r.sessions) >= r.config.MaxSessions {
		return nil, fmt.Errorf("%w: %d active", ErrTooManySessions, len(r.sessions))
	}

	session := &Session{
		id:     ID(r.nextID.Add(1)),
		device: device,
		phase:  PhaseInitializing,
		logs:   logring.New[LogEntry](r.config.LogCapacity),
	}
	r.sessions[session.id] = session
	r.byDevice[device.ID] = session.id
	return session, nil
}

// Spawn starts the daemon process for a placeholder session in the
// background. The outcome arrives on the event stream: EventAttached
// on success (consumer calls AttachProcess), EventSpawnFailed on
// failure (consumer's HandleEvent removes the session).
func (r *Registry) Spawn(ctx context.Context, id ID, config daemon.Config) {
	if config.Clock == nil {
		config.Clock = r.config.Clock
	}
	if config.Logger == nil {
		config.Logger = r.config.Logger
	}
	if config.ShutdownCommand == "" {
		// ID 0 is never allocated by a Tracker, so the daemon's reply
		// to the shutdown command is dropped as unmatched rather than
		// resolving a live request.
		line, err := protocol.MarshalCommand(protocol.Command{Method: protocol.MethodDaemonShutdown, ID: 0})
		if err == nil {
			config.ShutdownCommand = line
		}
	}

	sink := make(chan daemon.Event, r.config.EventQueueSize)

	go func() {
		supervisor, err := daemon.Spawn(ctx, config, sink)
		if err != nil {
			r.events <- TaggedEvent{
				SessionID: id,
				Kind:      EventDaemon,
				Daemon:    daemon.Event{Kind: daemon.EventSpawnFailed, SpawnErr: err},
			}
			return
		}

		sender := command.NewSender(command.SenderConfig{
			Tracker:   r.tracker,
			Transport: supervisor,
			Timeout:   r.config.CommandTimeout,
			Clock:     r.config.Clock,
			Logger:    r.config.Logger,
		})

		r.events <- TaggedEvent{
			SessionID: id,
			Kind:      EventAttached,
			Process:   supervisor,
			Sender:    sender,
		}

		r.pump(id, sink)
	}()
}

// pump forwards one supervisor's events into the merged stream, tagged
// with the session ID. It drains briefly after the exit event so
// stderr lines racing the exit still arrive, then stops.
func (r *Registry) pump(id ID, sink <-chan daemon.Event) {
	for event := range sink {
		r.events <- TaggedEvent{SessionID: id, Kind: EventDaemon, Daemon: event}
		if event.Kind != daemon.EventExited {
			continue
		}
		for {
			// Goroutine cleanup, not semantics: the stderr loop ends
			// at process exit, so anything it still holds lands well
			// inside this window.
			select {
			case late := <-sink:
				r.events <- TaggedEvent{SessionID: id, Kind: EventDaemon, Daemon: late}
			case <-r.config.Clock.After(time.Second):
				return
			}
		}
	}
}

// AttachProcess completes a session after its spawn succeeded. Called
// by the consumer loop on EventAttached.
func (r *Registry) AttachProcess(id ID, process Process, sender *command.Sender) error {
	session, ok := r.sessions[id]
	if !ok {
		// Session was closed while spawning; the process must not be
		// orphaned.
		go process.Shutdown()
		return fmt.Errorf("attaching process: %w: %d", ErrUnknownSession, id)
	}
	session.process = process
	session.sender = sender
	session.queueLog(LogEntry{
		Time:     r.config.Clock.Now(),
		Stream:   StreamSystem,
		Severity: SeverityInfo,
		Text:     fmt.Sprintf("daemon started (pid %d)", process.PID()),
	})
	r.maybeFlush(session)
	return nil
}

// Remove closes a session: flushes its pending logs, shuts the process
// down in the background, and drops the entry. Used for explicit close
// and for spawn failure. Events arriving for the ID afterwards are
// discarded.
func (r *Registry) Remove(id ID) error {
	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("removing session: %w: %d", ErrUnknownSession, id)
	}

	session.flushLogs()
	if session.process != nil {
		// Shutdown blocks up to the grace period; never from the
		// consumer loop.
		go session.process.Shutdown()
	}

	delete(r.byDevice, session.device.ID)
	delete(r.sessions, id)
	return nil
}

// Shutdown closes every session and waits for all daemon processes to
// stop. Called once at application quit.
func (r *Registry) Shutdown() {
	var group sync.WaitGroup
	for id, session := range r.sessions {
		session.flushLogs()
		if session.process != nil {
			group.Add(1)
			go func(process Process) {
				defer group.Done()
				process.Shutdown()
			}(session.process)
		}
		delete(r.byDevice, session.device.ID)
		delete(r.sessions, id)
	}
	group.Wait()
}

// HandleEvent applies one consumer-stream event to the authoritative
// state. Must be called only from the consumer loop.
func (r *Registry) HandleEvent(event TaggedEvent) Change {
	change := Change{Session: event.SessionID}

	// Attach first: if the session was closed while its spawn was in
	// flight, AttachProcess shuts the live process down instead of
	// orphaning it.
	if event.Kind == EventAttached {
		if err := r.AttachProcess(event.SessionID, event.Process, event.Sender); err != nil {
			change.Discarded = true
			return change
		}
		change.LogsFlushed = true
		return change
	}

	session, ok := r.sessions[event.SessionID]
	if !ok {
		r.config.Logger.Debug("discarding event for closed session",
			"session", event.SessionID, "kind", event.Daemon.Kind.String())
		change.Discarded = true
		return change
	}

	switch event.Kind {
	case EventDaemon:
		return r.handleDaemonEvent(session, event.Daemon)

	default:
		return change
	}
}

// handleDaemonEvent routes one supervisor event for a live session.
func (r *Registry) handleDaemonEvent(session *Session, event daemon.Event) Change {
	change := Change{Session: session.id}

	switch event.Kind {
	case daemon.EventStdout:
		r.handleStdoutLine(session, event.Line, &change)

	case daemon.EventStderr:
		session.queueLog(LogEntry{
			Time:     r.config.Clock.Now(),
			Stream:   StreamStderr,
			Severity: SeverityWarn,
			Text:     event.Line,
		})

	case daemon.EventExited:
		if session.phase != PhaseStopped {
			session.phase = PhaseStopped
			change.PhaseChanged = true
		}
		severity := SeverityInfo
		text := "daemon exited"
		if event.ExitCode != nil {
			text = fmt.Sprintf("daemon exited with code %d", *event.ExitCode)
			if *event.ExitCode != 0 {
				severity = SeverityWarn
			}
		}
		if severity == SeverityWarn {
			r.config.Logger.Warn("daemon exited abnormally",
				"session", session.id, "code", *event.ExitCode)
		}
		session.queueLog(LogEntry{
			Time:     r.config.Clock.Now(),
			Stream:   StreamSystem,
			Severity: severity,
			Text:     text,
		})
		// Terminal state: flush everything the batch still holds.
		if session.flushLogs() > 0 {
			change.LogsFlushed = true
		}
		return change

	case daemon.EventSpawnFailed:
		// Spawn failure removes the session entirely so the UI can
		// offer retry from device selection.
		if err := r.Remove(session.id); err == nil {
			change.Removed = true
			change.SpawnErr = event.SpawnErr
		}
		return change
	}

	if r.maybeFlush(session) {
		change.LogsFlushed = true
	}
	return change
}

// handleStdoutLine decodes one stdout line: protocol responses resolve
// their pending command, protocol events drive the phase machine,
// anything else is console output.
func (r *Registry) handleStdoutLine(session *Session, line string, change *Change) {
	inner, ok := protocol.StripEnvelope(line)
	if !ok {
		session.queueLog(LogEntry{
			Time:   r.config.Clock.Now(),
			Stream: StreamConsole,
			Text:   line,
		})
		return
	}

	message, ok := protocol.ParseMessage(inner)
	if !ok {
		// Malformed protocol line: recover locally, never fatal.
		r.config.Logger.Debug("skipping malformed protocol line",
			"session", session.id, "line", line)
		session.queueLog(LogEntry{
			Time:     r.config.Clock.Now(),
			Stream:   StreamConsole,
			Severity: SeverityWarn,
			Text:     line,
		})
		return
	}

	switch message.Kind {
	case protocol.KindResponse:
		if session.sender != nil {
			session.sender.Resolve(message.Response)
		} else if !r.tracker.Resolve(message.Response.ID, message.Response) {
			r.config.Logger.Debug("dropping unmatched response",
				"session", session.id, "id", message.Response.ID)
		}
	case protocol.KindEvent:
		r.applyProtocolEvent(session, message.Event, change)
	}
}

// applyProtocolEvent drives the per-session phase machine and log
// stream from a daemon event.
func (r *Registry) applyProtocolEvent(session *Session, event *protocol.Event, change *Change) {
	now := r.config.Clock.Now()

	switch event.Name {
	case protocol.EventDaemonConnected:
		var params protocol.DaemonConnectedParams
		unmarshalParams(event.Params, &params)
		session.queueLog(LogEntry{
			Time:   now,
			Stream: StreamDaemon,
			Text:   fmt.Sprintf("connected to daemon %s (pid %d)", params.Version, params.PID),
		})

	case protocol.EventDaemonLog:
		var params protocol.DaemonLogParams
		unmarshalParams(event.Params, &params)
		session.queueLog(LogEntry{
			Time:     now,
			Stream:   StreamDaemon,
			Severity: severityFromLevel(params.Level),
			Text:     params.Message,
		})

	case protocol.EventAppStart:
		var params protocol.AppStartParams
		unmarshalParams(event.Params, &params)
		session.appID = params.AppID

	case protocol.EventAppStarted:
		if session.phase == PhaseInitializing || session.phase == PhaseReloading {
			session.phase = PhaseRunning
			change.PhaseChanged = true
		}
		session.progress = ""

	case protocol.EventAppProgress:
		var params protocol.AppProgressParams
		unmarshalParams(event.Params, &params)
		if params.Finished {
			session.progress = ""
		} else {
			session.progress = params.Message
		}

	case protocol.EventAppLog:
		var params protocol.AppLogParams
		unmarshalParams(event.Params, &params)
		severity := SeverityInfo
		if params.Error {
			severity = SeverityError
		}
		session.queueLog(LogEntry{
			Time:     now,
			Stream:   StreamApp,
			Severity: severity,
			Text:     params.Log,
		})

	case protocol.EventAppStop:
		if session.phase == PhaseRunning || session.phase == PhaseReloading {
			session.phase = PhaseStopped
			change.PhaseChanged = true
		}

	default:
		r.config.Logger.Debug("unhandled daemon event",
			"session", session.id, "event", event.Name)
	}
}

// maybeFlush flushes the session's pending batch when it reached the
// configured size. The render tick flushes the rest via FlushAll.
func (r *Registry) maybeFlush(session *Session) bool {
	if len(session.pendingLogs) < r.config.LogBatchSize {
		return false
	}
	return session.flushLogs() > 0
}

// FlushAll flushes every session's pending batch. Called by the
// consumer on each render tick. Returns the IDs whose buffers changed.
func (r *Registry) FlushAll() []ID {
	var flushed []ID
	for id, session := range r.sessions {
		if session.flushLogs() > 0 {
			flushed = append(flushed, id)
		}
	}
	return flushed
}

// Op is a blocking command operation, safe to run from any goroutine.
type Op func(ctx context.Context) error

// ReloadOp resolves the session's appId and returns an operation that
// hot-reloads (full=false) or fully restarts (full=true) the app. The
// session transitions to PhaseReloading immediately; the caller must
// report the op's outcome to CompleteReload from the consumer loop.
func (r *Registry) ReloadOp(id ID, full bool) (Op, error) {
	session, handle, appID, err := r.commandTarget(id)
	if err != nil {
		return nil, err
	}
	if session.phase == PhaseRunning {
		session.phase = PhaseReloading
	}
	return func(ctx context.Context) error {
		_, err := handle.Send(ctx, protocol.MethodAppRestart, protocol.RestartParams{
			AppID:       appID,
			FullRestart: full,
		})
		return err
	}, nil
}

// CompleteReload finishes a reload cycle: back to PhaseRunning, with
// the failure (if any) surfaced inside the session's own log stream.
// Called from the consumer loop with the op's result.
func (r *Registry) CompleteReload(id ID, opErr error) Change {
	change := Change{Session: id}
	session, ok := r.sessions[id]
	if !ok {
		change.Discarded = true
		return change
	}
	if session.phase == PhaseReloading {
		session.phase = PhaseRunning
		change.PhaseChanged = true
	}
	if opErr != nil {
		session.queueLog(LogEntry{
			Time:     r.config.Clock.Now(),
			Stream:   StreamSystem,
			Severity: SeverityError,
			Text:     fmt.Sprintf("reload failed: %v", opErr),
		})
		if session.flushLogs() > 0 {
			change.LogsFlushed = true
		}
	}
	return change
}

// StopOp returns an operation that stops the session's running app
// (the daemon process stays up).
func (r *Registry) StopOp(id ID) (Op, error) {
	_, handle, appID, err := r.commandTarget(id)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		_, err := handle.Send(ctx, protocol.MethodAppStop, protocol.StopParams{AppID: appID})
		return err
	}, nil
}

// CommandFailed surfaces a mid-session command failure as a log entry
// in that session's stream, per the error-propagation policy. Called
// from the consumer loop.
func (r *Registry) CommandFailed(id ID, operation string, opErr error) Change {
	change := Change{Session: id}
	session, ok := r.sessions[id]
	if !ok {
		change.Discarded = true
		return change
	}
	session.queueLog(LogEntry{
		Time:     r.config.Clock.Now(),
		Stream:   StreamSystem,
		Severity: SeverityError,
		Text:     fmt.Sprintf("%s failed: %v", operation, opErr),
	})
	if session.flushLogs() > 0 {
		change.LogsFlushed = true
	}
	return change
}

// commandTarget resolves the pieces an app-scoped command needs,
// enforcing the attached-and-started preconditions.
func (r *Registry) commandTarget(id ID) (*Session, command.Handle, string, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, command.Handle{}, "", fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	handle, attached := session.SenderHandle()
	if !attached {
		return nil, command.Handle{}, "", fmt.Errorf("session %d: %w", id, ErrNotAttached)
	}
	if session.appID == "" {
		return nil, command.Handle{}, "", fmt.Errorf("session %d: %w", id, ErrNoApp)
	}
	return session, handle, session.appID, nil
}

// unmarshalParams decodes event params, tolerating nil and malformed
// payloads — a bad params object degrades to zero values, it does not
// kill the session.
func unmarshalParams(raw json.RawMessage, target any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, target)
}

// severityFromLevel maps the daemon's log level strings onto the
// engine's severities.
func severityFromLevel(level string) Severity {
	switch level {
	case "error", "severe":
		return SeverityError
	case "warning", "warn":
		return SeverityWarn
	default:
		return SeverityInfo
	}
}
