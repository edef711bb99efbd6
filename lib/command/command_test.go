// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/runmux/runmux/lib/clock"
	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/protocol"
)

// fakeTransport records sent lines and lets tests close the channel.
type fakeTransport struct {
	mu     sync.Mutex
	lines  []string
	closed chan struct{}
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{closed: make(chan struct{})}
}

func (f *fakeTransport) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	select {
	case <-f.closed:
		return daemon.ErrInputClosed
	default:
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.closed }

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestTracker_ResolveOnce(t *testing.T) {
	tracker := NewTracker()
	id, slot := tracker.Register()
	key := strconv.FormatInt(id, 10)

	response := &protocol.Response{ID: key}
	if !tracker.Resolve(key, response) {
		t.Fatal("first Resolve = false, want true")
	}
	if tracker.Resolve(key, response) {
		t.Fatal("second Resolve = true, want false")
	}

	select {
	case got := <-slot:
		if got != response {
			t.Errorf("slot received %+v", got)
		}
	default:
		t.Fatal("slot empty after resolve")
	}
}

func TestTracker_CancelPurgesEntry(t *testing.T) {
	tracker := NewTracker()
	id, _ := tracker.Register()
	tracker.Cancel(id)

	if tracker.Resolve(strconv.FormatInt(id, 10), &protocol.Response{}) {
		t.Error("Resolve after Cancel = true, want false")
	}
	if tracker.Outstanding() != 0 {
		t.Errorf("outstanding = %d, want 0", tracker.Outstanding())
	}
}

func TestTracker_MonotonicIDs(t *testing.T) {
	tracker := NewTracker()
	previous := int64(0)
	for i := 0; i < 100; i++ {
		id, _ := tracker.Register()
		if id <= previous {
			t.Fatalf("id %d not greater than %d", id, previous)
		}
		previous = id
	}
}

func TestTracker_ConcurrentRegisterResolve(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, slot := tracker.Register()
				key := strconv.FormatInt(id, 10)
				if !tracker.Resolve(key, &protocol.Response{ID: key}) {
					t.Error("lost registration")
					return
				}
				response := <-slot
				if response.ID != key {
					t.Errorf("response %s for request %s", response.ID, key)
					return
				}
			}
		}()
	}
	wg.Wait()

	if tracker.Outstanding() != 0 {
		t.Errorf("outstanding = %d, want 0", tracker.Outstanding())
	}
}

func newTestSender(transport Transport, fake *clock.FakeClock) *Sender {
	return NewSender(SenderConfig{
		Tracker:   NewTracker(),
		Transport: transport,
		Timeout:   5 * time.Second,
		Clock:     fake,
	})
}

func TestSender_ResolvedResponse(t *testing.T) {
	transport := newFakeTransport()
	fake := clock.Fake(time.Unix(0, 0))
	sender := newTestSender(transport, fake)

	done := make(chan struct{})
	var response *protocol.Response
	var sendErr error
	go func() {
		defer close(done)
		response, sendErr = sender.Send(context.Background(), "app.restart", map[string]any{"appId": "a1"})
	}()

	// Wait for the command line to hit the transport, then resolve it
	// the way the router would.
	line := waitForLine(t, transport)
	inner, ok := protocol.StripEnvelope(line)
	if !ok {
		t.Fatalf("sent line %q has no envelope", line)
	}
	message, ok := protocol.ParseMessage(inner)
	if !ok || message.Kind != protocol.KindResponse {
		// Outbound commands parse as responses: they carry an id.
		t.Fatalf("sent line did not parse: %q", inner)
	}
	sender.Resolve(&protocol.Response{
		ID:     message.Response.ID,
		Result: json.RawMessage(`{"code":0}`),
	})

	<-done
	if sendErr != nil {
		t.Fatalf("Send: %v", sendErr)
	}
	if string(response.Result) != `{"code":0}` {
		t.Errorf("result = %s", response.Result)
	}
}

func TestSender_Timeout(t *testing.T) {
	transport := newFakeTransport()
	fake := clock.Fake(time.Unix(0, 0))
	sender := newTestSender(transport, fake)

	done := make(chan error, 1)
	go func() {
		_, err := sender.Send(context.Background(), "app.restart", nil)
		done <- err
	}()

	waitForLine(t, transport)

	// The Send goroutine registers its deadline waiter when it enters
	// the select; advance in small steps until the timeout lands.
	var err error
	for waiting := true; waiting; {
		select {
		case err = <-done:
			waiting = false
		default:
			fake.Advance(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if sender.tracker.Outstanding() != 0 {
		t.Error("dangling tracker entry after timeout")
	}

	// A late response for the purged ID is dropped, not applied.
	if sender.tracker.Resolve("1", &protocol.Response{ID: "1"}) {
		t.Error("late response resolved a purged registration")
	}
}

func TestSender_ChannelClosedBeforeSend(t *testing.T) {
	transport := newFakeTransport()
	close(transport.closed)
	sender := newTestSender(transport, clock.Fake(time.Unix(0, 0)))

	_, err := sender.Send(context.Background(), "app.stop", nil)
	if !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("err = %v, want ErrChannelClosed", err)
	}
	if sender.tracker.Outstanding() != 0 {
		t.Error("dangling tracker entry after closed channel")
	}
}

func TestSender_ChannelClosedWhileWaiting(t *testing.T) {
	transport := newFakeTransport()
	sender := newTestSender(transport, clock.Fake(time.Unix(0, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := sender.Send(context.Background(), "app.restart", nil)
		done <- err
	}()

	waitForLine(t, transport)
	close(transport.closed)

	if err := <-done; !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("err = %v, want ErrChannelClosed", err)
	}
}

func TestSender_DaemonError(t *testing.T) {
	transport := newFakeTransport()
	sender := newTestSender(transport, clock.Fake(time.Unix(0, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := sender.Send(context.Background(), "app.restart", nil)
		done <- err
	}()

	waitForLine(t, transport)
	sender.Resolve(&protocol.Response{ID: "1", Error: json.RawMessage(`"no such app"`)})

	err := <-done
	var daemonErr *DaemonError
	if !errors.As(err, &daemonErr) {
		t.Fatalf("err = %v, want DaemonError", err)
	}
	if daemonErr.Method != "app.restart" {
		t.Errorf("method = %q", daemonErr.Method)
	}
	if got := daemonErr.Error(); got != "app.restart: daemon error: no such app" {
		t.Errorf("message = %q", got)
	}
}

func TestSender_HandleIssuesRequests(t *testing.T) {
	transport := newFakeTransport()
	sender := newTestSender(transport, clock.Fake(time.Unix(0, 0)))
	handle := sender.Handle()

	done := make(chan error, 1)
	go func() {
		_, err := handle.Send(context.Background(), "ext.flag", map[string]any{"enabled": true})
		done <- err
	}()

	line := waitForLine(t, transport)
	sender.Resolve(&protocol.Response{ID: "1", Result: json.RawMessage(`true`)})
	if err := <-done; err != nil {
		t.Fatalf("handle Send: %v", err)
	}
	if want := `[{"method":"ext.flag","id":1,"params":{"enabled":true}}]`; line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}

// waitForLine polls the transport until one sent line is visible.
func waitForLine(t *testing.T, transport *fakeTransport) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := transport.sent(); len(lines) > 0 {
			return lines[len(lines)-1]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no line sent")
	return ""
}
