// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runmux/runmux/lib/clock"
	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/protocol"
)

var (
	// ErrTimeout means the daemon did not respond within the command
	// deadline. The registration is purged before this is returned; a
	// late response is logged and dropped, never delivered to a
	// future call's slot.
	ErrTimeout = errors.New("command timed out")

	// ErrChannelClosed means the daemon's input queue is gone — the
	// process exited or its stdin broke. The command was not
	// delivered.
	ErrChannelClosed = errors.New("daemon channel closed")
)

// DaemonError is an application-level error the daemon reported in a
// Response.
type DaemonError struct {
	// Method is the command that failed.
	Method string

	// Payload is the daemon's raw error value.
	Payload json.RawMessage
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("%s: daemon error: %s", e.Method, summarizeError(e.Payload))
}

// summarizeError renders the daemon's error payload for a message:
// string payloads unquoted, everything else as raw JSON.
func summarizeError(payload json.RawMessage) string {
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		return text
	}
	return string(payload)
}

// Transport is the write side of one daemon process: a line queue and
// a closed-on-exit signal. *daemon.Supervisor satisfies it; tests
// substitute fakes.
type Transport interface {
	// Send queues one serialized protocol line for the daemon's
	// stdin. Returns daemon.ErrInputClosed once the process is gone.
	Send(line string) error

	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// Sender issues correlated commands to one daemon process. Safe for
// concurrent use; background tasks that only need to issue requests
// hold a [Handle] instead of the Sender itself.
type Sender struct {
	tracker   *Tracker
	transport Transport
	timeout   time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	// Tracker is the shared correlation table. Required.
	Tracker *Tracker

	// Transport carries serialized commands to the daemon process.
	// Required.
	Transport Transport

	// Timeout bounds each Send call. Defaults to 10 seconds.
	Timeout time.Duration

	// Clock is the time source. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics for late responses and failed
	// sends. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewSender returns a Sender for the given supervisor.
func NewSender(config SenderConfig) *Sender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Sender{
		tracker:   config.Tracker,
		transport: config.Transport,
		timeout:   config.Timeout,
		clock:     config.Clock,
		logger:    config.Logger,
	}
}

// Send issues method with params and waits for the correlated
// response. Exactly one outcome occurs per call: the response, a
// wrapped ErrTimeout (registration purged), a wrapped ErrChannelClosed
// (process gone, nothing waited on), or ctx cancellation. A response
// whose Error field is set returns a *DaemonError.
func (s *Sender) Send(ctx context.Context, method string, params any) (*protocol.Response, error) {
	id, slot := s.tracker.Register()

	line, err := protocol.MarshalCommand(protocol.Command{
		Method: method,
		ID:     id,
		Params: params,
	})
	if err != nil {
		s.tracker.Cancel(id)
		return nil, err
	}

	if err := s.transport.Send(line); err != nil {
		s.tracker.Cancel(id)
		if errors.Is(err, daemon.ErrInputClosed) {
			return nil, fmt.Errorf("%s: %w", method, ErrChannelClosed)
		}
		return nil, fmt.Errorf("%s: queueing command: %w", method, err)
	}

	select {
	case response := <-slot:
		return checkDaemonError(method, response)
	case <-s.clock.After(s.timeout):
		s.tracker.Cancel(id)
		// A resolution may have raced the deadline; prefer it.
		select {
		case response := <-slot:
			return checkDaemonError(method, response)
		default:
		}
		return nil, fmt.Errorf("%s after %s: %w", method, s.timeout, ErrTimeout)
	case <-s.transport.Done():
		s.tracker.Cancel(id)
		select {
		case response := <-slot:
			return checkDaemonError(method, response)
		default:
		}
		return nil, fmt.Errorf("%s: %w", method, ErrChannelClosed)
	case <-ctx.Done():
		s.tracker.Cancel(id)
		return nil, ctx.Err()
	}
}

// checkDaemonError converts a response carrying an error payload into
// a *DaemonError, passing clean responses through.
func checkDaemonError(method string, response *protocol.Response) (*protocol.Response, error) {
	if response.Error != nil {
		return response, &DaemonError{Method: method, Payload: response.Error}
	}
	return response, nil
}

// Resolve routes an inbound response to whichever Send call registered
// its ID. Unmatched responses (late arrivals after a timeout purge,
// or IDs this engine never issued) are logged and dropped.
func (s *Sender) Resolve(response *protocol.Response) {
	if !s.tracker.Resolve(response.ID, response) {
		s.logger.Debug("dropping unmatched response", "id", response.ID)
	}
}

// Handle is a lightweight capability to issue commands without owning
// the session. Hand it to background tasks (pollers, the VM extension
// client) that must not manage lifecycle.
type Handle struct {
	sender *Sender
}

// Handle returns a request-issuing handle on this sender.
func (s *Sender) Handle() Handle {
	return Handle{sender: s}
}

// Send issues a correlated command through the underlying sender.
func (h Handle) Send(ctx context.Context, method string, params any) (*protocol.Response, error) {
	return h.sender.Send(ctx, method, params)
}
