// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/runmux/runmux/lib/daemon"
	"github.com/runmux/runmux/lib/session"
	"github.com/runmux/runmux/lib/vmext"
)

// renderInterval paces log flushing and repaint. Log batches smaller
// than the registry's batch size wait at most this long before they
// become visible.
const renderInterval = 100 * time.Millisecond

// noticeFadeDelay is how long a status-bar notice stays visible.
const noticeFadeDelay = 4 * time.Second

// engineEventMsg wraps one registry stream event for delivery through
// the bubbletea message loop.
type engineEventMsg struct {
	event session.TaggedEvent
}

// renderTickMsg paces log flushing and repaint.
type renderTickMsg struct{}

// watchTriggerMsg reports a debounced source change from the file
// watcher.
type watchTriggerMsg struct{}

// opResultMsg reports completion of a background command operation.
type opResultMsg struct {
	session   session.ID
	operation string
	reload    bool
	err       error
}

// noticeFadeMsg clears the status-bar notice.
type noticeFadeMsg struct{}

// Config configures the terminal interface.
type Config struct {
	// Registry is the session collection this model consumes. Required.
	Registry *session.Registry

	// Devices are the launch targets to start sessions on.
	Devices []session.Device

	// DaemonConfig builds the supervisor config for a device. When
	// nil, no processes are spawned (sessions stay placeholders until
	// attached externally, which tests rely on).
	DaemonConfig func(session.Device) daemon.Config

	// WatchTriggers delivers debounced source-change notifications.
	// Each trigger hot-reloads every running session. Nil disables.
	WatchTriggers <-chan struct{}

	// Logger receives interface diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Model is the top-level bubbletea model.
type Model struct {
	registry *session.Registry
	config   Config
	theme    Theme
	keys     KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// selected is the session whose logs fill the pane. Tracked by ID
	// rather than list index so removals do not shift focus.
	selected session.ID

	// logPane scrolls the selected session's log buffer. follow keeps
	// it pinned to the newest line until the user scrolls up.
	logPane viewport.Model
	follow  bool

	// notice is briefly shown in the status bar (spawn failures,
	// command errors). Cleared by noticeFadeMsg.
	notice string

	// debugFlags tracks which VM debug toggles are on, per session.
	// The daemon does not echo extension state, so the engine owns it.
	debugFlags map[session.ID]map[string]bool

	quitting bool
}

// NewModel creates the interface model and starts one session per
// configured device. Spawning is asynchronous; outcomes arrive on the
// registry stream once the bubbletea program runs.
func NewModel(config Config) Model {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	model := Model{
		registry: config.Registry,
		config:   config,
		theme:    DefaultTheme,
		keys:     DefaultKeyMap,
		follow:   true,
	}

	for _, device := range config.Devices {
		created, err := config.Registry.CreateSession(device)
		if err != nil {
			config.Logger.Warn("skipping device", "device", device.ID, "error", err)
			continue
		}
		if model.selected == 0 {
			model.selected = created.ID()
		}
		if config.DaemonConfig != nil {
			config.Registry.Spawn(context.Background(), created.ID(), config.DaemonConfig(device))
		}
	}

	return model
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	commands := []tea.Cmd{
		listenForEngineEvent(model.registry.Events()),
		renderTick(),
	}
	if model.config.WatchTriggers != nil {
		commands = append(commands, listenForWatchTrigger(model.config.WatchTriggers))
	}
	return tea.Batch(commands...)
}

// listenForEngineEvent returns a tea.Cmd that blocks until the next
// registry stream event and delivers it as an engineEventMsg.
func listenForEngineEvent(events <-chan session.TaggedEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return engineEventMsg{event: event}
	}
}

// listenForWatchTrigger blocks until the next file-watcher trigger.
func listenForWatchTrigger(triggers <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-triggers
		if !ok {
			return nil
		}
		return watchTriggerMsg{}
	}
}

func renderTick() tea.Cmd {
	return tea.Tick(renderInterval, func(time.Time) tea.Msg {
		return renderTickMsg{}
	})
}

// Update implements tea.Model. This is the engine's single consumer
// loop: all registry mutation happens here.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.logPane.Width = model.width
		model.logPane.Height = model.logPaneHeight()
		model.refreshLogPane()

	case engineEventMsg:
		change := model.registry.HandleEvent(message.event)
		model.applyChange(change)
		return model, tea.Batch(listenForEngineEvent(model.registry.Events()), model.pendingFade())

	case renderTickMsg:
		for _, id := range model.registry.FlushAll() {
			if id == model.selected {
				model.refreshLogPane()
			}
		}
		model.ensureSelection()
		return model, renderTick()

	case watchTriggerMsg:
		commands := model.reloadAllRunning()
		commands = append(commands, listenForWatchTrigger(model.config.WatchTriggers))
		return model, tea.Batch(commands...)

	case opResultMsg:
		if message.reload {
			model.applyChange(model.registry.CompleteReload(message.session, message.err))
		} else if message.err != nil {
			model.applyChange(model.registry.CommandFailed(message.session, message.operation, message.err))
		}
		return model, model.pendingFade()

	case noticeFadeMsg:
		model.notice = ""
	}
	return model, nil
}

// handleKey routes keyboard input.
func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		model.quitting = true
		// Shutdown blocks until every daemon is reaped; acceptable at
		// quit, where there is nothing left to render.
		model.registry.Shutdown()
		return model, tea.Quit

	case key.Matches(message, model.keys.NextSession):
		model.selectAdjacent(1)

	case key.Matches(message, model.keys.PreviousSession):
		model.selectAdjacent(-1)

	case key.Matches(message, model.keys.Reload):
		operation := model.startReload(false)
		return model, operation

	case key.Matches(message, model.keys.Restart):
		operation := model.startReload(true)
		return model, operation

	case key.Matches(message, model.keys.Stop):
		operation := model.startStop()
		return model, operation

	case key.Matches(message, model.keys.PerformanceOverlay):
		operation := model.toggleDebugFlag(vmext.ExtensionPerformanceOverlay)
		return model, operation

	case key.Matches(message, model.keys.DebugPaint):
		operation := model.toggleDebugFlag(vmext.ExtensionDebugPaint)
		return model, operation

	case key.Matches(message, model.keys.Close):
		if model.selected != 0 {
			if err := model.registry.Remove(model.selected); err == nil {
				model.selected = 0
				model.ensureSelection()
			}
		}

	case key.Matches(message, model.keys.Up):
		model.follow = false
		model.logPane.LineUp(1)

	case key.Matches(message, model.keys.Down):
		model.logPane.LineDown(1)
		if model.logPane.AtBottom() {
			model.follow = true
		}

	case key.Matches(message, model.keys.PageUp):
		model.follow = false
		model.logPane.HalfViewUp()

	case key.Matches(message, model.keys.PageDown):
		model.logPane.HalfViewDown()
		if model.logPane.AtBottom() {
			model.follow = true
		}

	case key.Matches(message, model.keys.Top):
		model.follow = false
		model.logPane.GotoTop()

	case key.Matches(message, model.keys.Bottom):
		model.follow = true
		model.logPane.GotoBottom()
	}
	return model, nil
}

// applyChange reacts to one registry mutation summary.
func (model *Model) applyChange(change session.Change) {
	if change.Removed {
		if change.SpawnErr != nil {
			model.notice = fmt.Sprintf("session %d failed to start: %v", change.Session, change.SpawnErr)
		}
		if change.Session == model.selected {
			model.selected = 0
		}
		model.ensureSelection()
		return
	}
	if change.Session == model.selected && (change.LogsFlushed || change.PhaseChanged) {
		model.refreshLogPane()
	}
}

// pendingFade schedules the notice fade when a notice is showing.
func (model Model) pendingFade() tea.Cmd {
	if model.notice == "" {
		return nil
	}
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{}
	})
}

// startReload begins a hot reload (full=false) or full restart
// (full=true) of the selected session, returning the background
// command that runs it.
func (model *Model) startReload(full bool) tea.Cmd {
	id := model.selected
	if id == 0 {
		return nil
	}
	operation, err := model.registry.ReloadOp(id, full)
	if err != nil {
		model.notice = fmt.Sprintf("session %d: %v", id, err)
		return model.pendingFade()
	}
	model.refreshLogPane()
	return func() tea.Msg {
		return opResultMsg{session: id, reload: true, err: operation(context.Background())}
	}
}

// startStop stops the selected session's app without closing the
// session.
func (model *Model) startStop() tea.Cmd {
	id := model.selected
	if id == 0 {
		return nil
	}
	operation, err := model.registry.StopOp(id)
	if err != nil {
		model.notice = fmt.Sprintf("session %d: %v", id, err)
		return model.pendingFade()
	}
	return func() tea.Msg {
		return opResultMsg{session: id, operation: "stop", err: operation(context.Background())}
	}
}

// toggleDebugFlag flips a VM debug toggle for the selected session and
// issues the service-extension call in the background.
func (model *Model) toggleDebugFlag(flag string) tea.Cmd {
	id := model.selected
	selected := model.registry.Get(id)
	if selected == nil {
		return nil
	}
	handle, attached := selected.SenderHandle()
	if !attached || selected.AppID() == "" {
		model.notice = fmt.Sprintf("session %d: %v", id, session.ErrNoApp)
		return model.pendingFade()
	}

	if model.debugFlags == nil {
		model.debugFlags = make(map[session.ID]map[string]bool)
	}
	flags := model.debugFlags[id]
	if flags == nil {
		flags = make(map[string]bool)
		model.debugFlags[id] = flags
	}
	flags[flag] = !flags[flag]
	enabled := flags[flag]

	client := vmext.New(handle, selected.AppID())
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		switch flag {
		case vmext.ExtensionPerformanceOverlay:
			err = client.SetPerformanceOverlay(ctx, enabled)
		case vmext.ExtensionDebugPaint:
			err = client.SetDebugPaint(ctx, enabled)
		}
		return opResultMsg{session: id, operation: "service extension", err: err}
	}
}

// reloadAllRunning issues a hot reload for every running session.
// Used by the file watcher path.
func (model *Model) reloadAllRunning() []tea.Cmd {
	var commands []tea.Cmd
	for _, active := range model.registry.List() {
		if active.Phase() != session.PhaseRunning {
			continue
		}
		id := active.ID()
		operation, err := model.registry.ReloadOp(id, false)
		if err != nil {
			continue
		}
		commands = append(commands, func() tea.Msg {
			return opResultMsg{session: id, reload: true, err: operation(context.Background())}
		})
	}
	if len(commands) > 0 && model.selected != 0 {
		model.refreshLogPane()
	}
	return commands
}

// selectAdjacent moves the selection within the ordered session list.
func (model *Model) selectAdjacent(step int) {
	ordered := model.registry.List()
	if len(ordered) == 0 {
		model.selected = 0
		return
	}
	current := 0
	for index, active := range ordered {
		if active.ID() == model.selected {
			current = index
			break
		}
	}
	next := (current + step + len(ordered)) % len(ordered)
	if ordered[next].ID() != model.selected {
		model.selected = ordered[next].ID()
		model.follow = true
		model.refreshLogPane()
	}
}

// ensureSelection repairs the selection after removals.
func (model *Model) ensureSelection() {
	if model.selected != 0 && model.registry.Get(model.selected) != nil {
		return
	}
	model.selected = 0
	if ordered := model.registry.List(); len(ordered) > 0 {
		model.selected = ordered[0].ID()
	}
	model.refreshLogPane()
}

// refreshLogPane re-renders the selected session's log buffer into the
// viewport, preserving follow mode.
func (model *Model) refreshLogPane() {
	selected := model.registry.Get(model.selected)
	if selected == nil {
		model.logPane.SetContent("")
		return
	}
	model.logPane.SetContent(model.renderLogs(selected))
	if model.follow {
		model.logPane.GotoBottom()
	}
}

// logPaneHeight returns the viewport height: total minus the session
// tab line and the status bar.
func (model Model) logPaneHeight() int {
	height := model.height - 2
	if height < 1 {
		height = 1
	}
	return height
}
