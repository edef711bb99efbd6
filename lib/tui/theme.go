// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/runmux/runmux/lib/session"
)

// Theme defines the color palette for the terminal interface. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected session tab.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Phase badge colors.
	PhaseInitializing lipgloss.Color
	PhaseRunning      lipgloss.Color
	PhaseReloading    lipgloss.Color
	PhaseStopped      lipgloss.Color

	// Log severity colors.
	SeverityWarn  lipgloss.Color
	SeverityError lipgloss.Color

	// UI chrome.
	BorderColor lipgloss.Color
	HelpText    lipgloss.Color
	Notice      lipgloss.Color
}

// PhaseColor returns the badge color for a session phase.
func (theme Theme) PhaseColor(phase session.Phase) lipgloss.Color {
	switch phase {
	case session.PhaseInitializing:
		return theme.PhaseInitializing
	case session.PhaseRunning:
		return theme.PhaseRunning
	case session.PhaseReloading:
		return theme.PhaseReloading
	case session.PhaseStopped:
		return theme.PhaseStopped
	default:
		return theme.FaintText
	}
}

// SeverityColor returns the text color for a log entry severity.
// Info-level entries use the normal text color.
func (theme Theme) SeverityColor(severity session.Severity) lipgloss.Color {
	switch severity {
	case session.SeverityWarn:
		return theme.SeverityWarn
	case session.SeverityError:
		return theme.SeverityError
	default:
		return theme.NormalText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	PhaseInitializing: lipgloss.Color("220"), // yellow/amber
	PhaseRunning:      lipgloss.Color("114"), // green
	PhaseReloading:    lipgloss.Color("75"),  // blue
	PhaseStopped:      lipgloss.Color("196"), // red

	SeverityWarn:  lipgloss.Color("208"),
	SeverityError: lipgloss.Color("196"),

	BorderColor: lipgloss.Color("238"),
	HelpText:    lipgloss.Color("241"),
	Notice:      lipgloss.Color("220"),
}
