// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui implements the runmux terminal interface: a bubbletea
// model showing one tab per session with a scrollable log pane for
// the selected one.
//
// The Update loop is the engine's single consumer: every event from
// the session registry's merged stream is delivered as a bubbletea
// message and applied via Registry.HandleEvent, so all session state
// mutation happens on the one goroutine bubbletea runs Update on.
// Blocking command operations (reload, stop) run as background
// tea.Cmd closures and report back through messages, never touching
// registry state themselves.
package tui
