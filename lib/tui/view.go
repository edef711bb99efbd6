// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/runmux/runmux/lib/session"
)

// View implements tea.Model.
func (model Model) View() string {
	if model.quitting {
		return "stopping sessions...\n"
	}
	if !model.ready {
		return "starting...\n"
	}

	var view strings.Builder
	view.WriteString(model.renderTabBar())
	view.WriteString("\n")
	view.WriteString(model.logPane.View())
	view.WriteString("\n")
	view.WriteString(model.renderStatusBar())
	return view.String()
}

// renderTabBar shows one tab per session: index, device name, phase
// badge. The selected session is highlighted.
func (model Model) renderTabBar() string {
	ordered := model.registry.List()
	if len(ordered) == 0 {
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no sessions")
	}

	var tabs []string
	for index, active := range ordered {
		label := fmt.Sprintf(" %d:%s %s ", index+1, tabName(active.Device()), phaseBadge(active.Phase()))
		style := lipgloss.NewStyle().Foreground(model.theme.PhaseColor(active.Phase()))
		if active.ID() == model.selected {
			style = style.
				Background(model.theme.SelectedBackground).
				Foreground(model.theme.SelectedForeground).
				Bold(true)
		}
		tabs = append(tabs, style.Render(label))
	}
	bar := strings.Join(tabs, " ")
	return ansi.Truncate(bar, model.width, "…")
}

// tabName prefers the human-readable device name.
func tabName(device session.Device) string {
	if device.Name != "" {
		return device.Name
	}
	return device.ID
}

// phaseBadge is the compact phase marker shown in a session tab.
func phaseBadge(phase session.Phase) string {
	switch phase {
	case session.PhaseInitializing:
		return "◌"
	case session.PhaseRunning:
		return "●"
	case session.PhaseReloading:
		return "↻"
	case session.PhaseStopped:
		return "✕"
	default:
		return "?"
	}
}

// renderStatusBar shows the selected session's progress message, any
// transient notice, dropped-line count, and the key help line.
func (model Model) renderStatusBar() string {
	helpStyle := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	noticeStyle := lipgloss.NewStyle().Foreground(model.theme.Notice)

	left := ""
	if model.notice != "" {
		left = noticeStyle.Render(model.notice)
	} else if selected := model.registry.Get(model.selected); selected != nil {
		switch {
		case selected.Progress() != "":
			left = selected.Progress()
		case selected.DroppedLogs() > 0:
			left = fmt.Sprintf("%d log lines dropped", selected.DroppedLogs())
		}
		left = helpStyle.Render(left)
	}

	help := helpStyle.Render("Tab switch · r reload · R restart · x stop · c close · p overlay · q quit")
	gap := model.width - ansi.StringWidth(left) - ansi.StringWidth(help)
	if gap < 1 {
		return ansi.Truncate(left+" "+help, model.width, "…")
	}
	return left + strings.Repeat(" ", gap) + help
}

// renderLogs formats a session's flushed log buffer for the viewport.
func (model Model) renderLogs(selected *session.Session) string {
	entries := selected.Logs()
	if len(entries) == 0 {
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("waiting for output...")
	}

	timeStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	var lines []string
	for _, entry := range entries {
		textStyle := lipgloss.NewStyle().Foreground(model.theme.SeverityColor(entry.Severity))
		line := fmt.Sprintf("%s %s %s",
			timeStyle.Render(entry.Time.Format("15:04:05")),
			timeStyle.Render(streamTag(entry.Stream)),
			textStyle.Render(entry.Text),
		)
		lines = append(lines, ansi.Truncate(line, model.width, "…"))
	}
	return strings.Join(lines, "\n")
}

// streamTag is the fixed-width origin marker in a log line.
func streamTag(stream session.Stream) string {
	switch stream {
	case session.StreamConsole:
		return "con"
	case session.StreamStderr:
		return "err"
	case session.StreamApp:
		return "app"
	case session.StreamDaemon:
		return "dmn"
	case session.StreamSystem:
		return "sys"
	default:
		return "???"
	}
}
