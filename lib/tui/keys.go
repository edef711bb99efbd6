// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the terminal interface.
type KeyMap struct {
	// Session tab selection.
	NextSession     key.Binding
	PreviousSession key.Binding

	// Log pane scrolling.
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding

	// Session commands.
	Reload  key.Binding // Hot reload the selected session's app.
	Restart key.Binding // Full restart of the selected session's app.
	Stop    key.Binding // Stop the selected session's app.
	Close   key.Binding // Close the selected session entirely.

	// Debug toggles, proxied into the app's VM.
	PerformanceOverlay key.Binding
	DebugPaint         key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set. Vim-style scrolling
// (j/k) alongside standard arrow keys, tab to cycle sessions.
var DefaultKeyMap = KeyMap{
	NextSession: key.NewBinding(
		key.WithKeys("tab", "right"),
		key.WithHelp("Tab", "next session"),
	),
	PreviousSession: key.NewBinding(
		key.WithKeys("shift+tab", "left"),
		key.WithHelp("S-Tab", "previous session"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("C-u", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("C-d", "page down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	Restart: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "restart"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop app"),
	),
	Close: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "close session"),
	),
	PerformanceOverlay: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "performance overlay"),
	),
	DebugPaint: key.NewBinding(
		key.WithKeys("P"),
		key.WithHelp("P", "debug paint"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
