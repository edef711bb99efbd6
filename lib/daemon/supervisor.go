// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/runmux/runmux/lib/clock"
)

// Spawn validation and lifecycle errors. Distinguishable with
// errors.Is so callers can offer the right remedy (change directory vs
// install the tool vs retry).
var (
	// ErrNoProject means the working directory lacks the project
	// marker file. Not retryable without changing directory.
	ErrNoProject = errors.New("working directory is not a project")

	// ErrToolNotFound means the build tool executable could not be
	// located on PATH.
	ErrToolNotFound = errors.New("build tool not found")

	// ErrInputClosed means a write was attempted after the daemon's
	// stdin queue shut down (process exited or a prior write failed).
	ErrInputClosed = errors.New("daemon input closed")
)

// Config configures a Supervisor.
type Config struct {
	// Tool is the build tool executable name or path.
	Tool string

	// Args are the arguments that put the tool in daemon mode
	// (e.g., ["daemon"] or ["run", "--machine"]).
	Args []string

	// WorkingDirectory is the project directory the daemon runs in.
	WorkingDirectory string

	// MarkerFile must exist in WorkingDirectory for the spawn to
	// proceed (e.g., "pubspec.yaml"). Empty disables the check.
	MarkerFile string

	// ShutdownCommand is a pre-serialized protocol line written to
	// the daemon's stdin as the graceful phase of Shutdown. Empty
	// skips straight to waiting.
	ShutdownCommand string

	// ShutdownGrace bounds the wait for natural exit during Shutdown
	// before the process is killed. Defaults to 5 seconds.
	ShutdownGrace time.Duration

	// ExitStatusGrace bounds how long the stdout loop waits, after
	// the stream closes, for the exit status to be reaped before
	// emitting a synthetic EventExited with a nil code. Defaults to
	// one second.
	ExitStatusGrace time.Duration

	// InputQueueSize bounds the stdin write queue. Defaults to 16.
	InputQueueSize int

	// Clock is the time source. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives supervisor diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.ExitStatusGrace <= 0 {
		c.ExitStatusGrace = time.Second
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = 16
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Supervisor owns one spawned daemon process and its I/O loops.
type Supervisor struct {
	config  Config
	command *exec.Cmd
	pid     int

	// input feeds the stdin write loop. Closed by Shutdown.
	input chan string

	// inputClosed is closed when no further writes will be accepted:
	// the write loop hit an error, or Shutdown began.
	inputClosed chan struct{}
	closeInput  sync.Once

	// done is closed by the waiter goroutine once the process has
	// been reaped. exitCode is valid only after done is closed.
	done     chan struct{}
	exitCode *int

	// stdoutRead and stderrRead are the parent's read ends of pipes
	// created outside exec.Cmd, so reaping the process cannot close
	// them while buffered output is still unread. The waiter force-
	// closes them after the exit-status grace so a grandchild holding
	// the write end cannot stall the readers forever.
	stdoutRead *os.File
	stderrRead *os.File

	// readersDone is signaled once the stdout and stderr readers reach
	// EOF (or the forced close above).
	readersDone sync.WaitGroup

	shutdownOnce sync.Once
}

// Spawn validates the working directory, starts the daemon process,
// and launches its I/O loops. Every protocol and console line read
// from the process arrives on sink as it is produced; sends block when
// the consumer falls behind.
//
// The returned Supervisor holds a live process. Callers must
// eventually call Shutdown (or Kill) — cancelling ctx also kills the
// process, so no child outlives the engine that spawned it.
func Spawn(ctx context.Context, config Config, sink chan<- Event) (*Supervisor, error) {
	config.applyDefaults()

	if config.MarkerFile != "" {
		marker := filepath.Join(config.WorkingDirectory, config.MarkerFile)
		if _, err := os.Stat(marker); err != nil {
			return nil, fmt.Errorf("%w: missing %s in %s", ErrNoProject, config.MarkerFile, config.WorkingDirectory)
		}
	}

	toolPath, err := exec.LookPath(config.Tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not on PATH", ErrToolNotFound, config.Tool)
	}

	command := exec.CommandContext(ctx, toolPath, config.Args...)
	command.Dir = config.WorkingDirectory

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, stdoutWrite, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, stderrWrite, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		stdoutWrite.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	command.Stdout = stdoutWrite
	command.Stderr = stderrWrite

	if err := command.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stdoutWrite.Close()
		stderr.Close()
		stderrWrite.Close()
		return nil, fmt.Errorf("starting %s: %w", config.Tool, err)
	}

	// The child holds its own copies of the write ends; drop ours so
	// the readers see EOF when the child side closes.
	stdoutWrite.Close()
	stderrWrite.Close()

	supervisor := &Supervisor{
		config:      config,
		command:     command,
		pid:         command.Process.Pid,
		input:       make(chan string, config.InputQueueSize),
		inputClosed: make(chan struct{}),
		done:        make(chan struct{}),
		stdoutRead:  stdout,
		stderrRead:  stderr,
	}

	supervisor.readersDone.Add(2)
	go supervisor.wait()
	go supervisor.stdoutLoop(stdout, sink)
	go supervisor.stderrLoop(stderr, sink)
	go supervisor.writeLoop(stdin)

	config.Logger.Info("daemon spawned",
		"tool", config.Tool,
		"pid", supervisor.pid,
		"dir", config.WorkingDirectory)

	return supervisor, nil
}

// PID returns the operating system process ID.
func (s *Supervisor) PID() int { return s.pid }

// IsRunning reports whether the process has not yet been reaped. It
// never consumes exit status itself.
func (s *Supervisor) IsRunning() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Send queues one serialized protocol line for the daemon's stdin.
// Returns ErrInputClosed once the process is gone or a prior write
// failed; a send never blocks indefinitely against a dead process.
func (s *Supervisor) Send(line string) error {
	select {
	case <-s.inputClosed:
		return ErrInputClosed
	default:
	}
	select {
	case s.input <- line:
		return nil
	case <-s.inputClosed:
		return ErrInputClosed
	case <-s.done:
		return ErrInputClosed
	}
}

// Shutdown performs the graceful-then-forced stop sequence: write the
// shutdown command (best effort), wait up to the configured grace for
// natural exit, then kill. Idempotent and safe on an already-exited
// process; concurrent callers all block until the process is reaped.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.config.ShutdownCommand != "" {
			// Best effort: a full queue or dead process must not
			// stall shutdown.
			select {
			case s.input <- s.config.ShutdownCommand:
			default:
			}
		}
		s.closeInput.Do(func() { close(s.inputClosed) })

		select {
		case <-s.done:
		case <-s.config.Clock.After(s.config.ShutdownGrace):
			s.config.Logger.Warn("daemon did not exit in grace period, killing",
				"pid", s.pid, "grace", s.config.ShutdownGrace)
			s.Kill()
		}
	})
	<-s.done
}

// Kill forcibly terminates the process. Safe to call at any time,
// including after exit.
func (s *Supervisor) Kill() {
	if err := s.command.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.config.Logger.Warn("killing daemon", "pid", s.pid, "error", err)
	}
}

// wait reaps the process exactly once and records its exit code.
func (s *Supervisor) wait() {
	err := s.command.Wait()
	if exitError := (&exec.ExitError{}); errors.As(err, &exitError) {
		code := exitError.ExitCode()
		s.exitCode = &code
	} else if err == nil {
		code := 0
		s.exitCode = &code
	}
	s.closeInput.Do(func() { close(s.inputClosed) })
	close(s.done)

	// The readers keep the pipe read ends open until EOF so no buffered
	// output is lost, but a grandchild that inherited a write end could
	// hold them open indefinitely; force EOF after the grace.
	drained := make(chan struct{})
	go func() {
		s.readersDone.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-s.config.Clock.After(s.config.ExitStatusGrace):
	}
	s.stdoutRead.Close()
	s.stderrRead.Close()
}

// stdoutLoop reads stdout line by line and forwards each to the sink.
// On stream closure it emits the session's single EventExited,
// waiting briefly for the reaper so the real exit code can ride along.
func (s *Supervisor) stdoutLoop(stdout io.Reader, sink chan<- Event) {
	scanLines(stdout, s.config.Logger, func(line string) {
		sink <- Event{Kind: EventStdout, Line: line}
	})
	s.readersDone.Done()

	// Emit the exit only after the stderr reader has also drained, so
	// the owner sees every line before EventExited; the grace bounds
	// both waits against a stream that never closes.
	drained := make(chan struct{})
	go func() {
		s.readersDone.Wait()
		close(drained)
	}()
	grace := s.config.Clock.After(s.config.ExitStatusGrace)
	timedOut := false
	select {
	case <-drained:
	case <-grace:
		timedOut = true
	}
	if !timedOut {
		select {
		case <-s.done:
		case <-grace:
		}
	}
	sink <- Event{Kind: EventExited, ExitCode: s.exitCodeIfReaped()}
}

// stderrLoop reads stderr line by line. It never emits EventExited —
// exit is owned by the stdout loop so the owner sees it exactly once.
func (s *Supervisor) stderrLoop(stderr io.Reader, sink chan<- Event) {
	scanLines(stderr, s.config.Logger, func(line string) {
		sink <- Event{Kind: EventStderr, Line: line}
	})
	s.readersDone.Done()
}

// writeLoop drains the input queue onto the daemon's stdin, one line
// per entry. A write failure stops the loop and surfaces as
// ErrInputClosed on later sends; it never crashes the supervisor.
func (s *Supervisor) writeLoop(stdin io.WriteCloser) {
	defer stdin.Close()
	writer := bufio.NewWriter(stdin)
	for {
		select {
		case line := <-s.input:
			if _, err := writer.WriteString(line + "\n"); err != nil {
				s.writeFailed(err)
				return
			}
			if err := writer.Flush(); err != nil {
				s.writeFailed(err)
				return
			}
		case <-s.inputClosed:
			// Drain anything queued before the close raced in.
			for {
				select {
				case line := <-s.input:
					if _, err := writer.WriteString(line + "\n"); err != nil {
						return
					}
					if err := writer.Flush(); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) writeFailed(err error) {
	s.config.Logger.Warn("daemon stdin write failed", "pid", s.pid, "error", err)
	s.closeInput.Do(func() { close(s.inputClosed) })
}

// exitCodeIfReaped returns the recorded exit code, or nil when the
// reaper has not finished.
func (s *Supervisor) exitCodeIfReaped() *int {
	select {
	case <-s.done:
		return s.exitCode
	default:
		return nil
	}
}

// scanLines reads r line by line. The daemon can emit long protocol
// lines (large app.log payloads), so the scanner buffer is enlarged
// beyond the bufio default.
func scanLines(r io.Reader, logger *slog.Logger, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug("daemon stream closed with error", "error", err)
	}
}
