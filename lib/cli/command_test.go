// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "runmux",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "devices",
				Run: func(args []string) error {
					called = "devices"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"devices"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "devices" {
		t.Errorf("dispatched to %q, want %q", called, "devices")
	}
}

func TestCommand_Execute_PassesRemainingArgs(t *testing.T) {
	var receivedArgs []string

	root := &Command{
		Name: "runmux",
		Subcommands: []*Command{
			{
				Name: "run",
				Run: func(args []string) error {
					receivedArgs = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"run", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var mode string
	var target string

	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&mode, "mode", "debug", "build mode")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--mode", "profile", "emulator-5554"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if mode != "profile" {
		t.Errorf("mode = %q, want %q", mode, "profile")
	}
	if target != "emulator-5554" {
		t.Errorf("target = %q, want %q", target, "emulator-5554")
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "runmux",
		Subcommands: []*Command{
			{Name: "devices", Run: func(args []string) error { return nil }},
			{Name: "version", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"devcies"})
	if err == nil {
		t.Fatal("Execute() succeeded with unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "devices"`) {
		t.Errorf("error lacks suggestion: %v", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.Bool("watch", false, "reload on source changes")
			flagSet.String("mode", "debug", "build mode")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--wacth"})
	if err == nil {
		t.Fatal("Execute() succeeded with unknown flag")
	}
	if !strings.Contains(err.Error(), "--watch") {
		t.Errorf("error lacks flag suggestion: %v", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "runmux",
		Subcommands: []*Command{
			{Name: "run", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute(nil)
	if err == nil {
		t.Fatal("Execute() succeeded with no subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %v", err)
	}
}

func TestCommand_PrintHelp_ListsSubcommandsAndExamples(t *testing.T) {
	root := &Command{
		Name:        "runmux",
		Description: "Drive multiple run daemons from one terminal.",
		Examples: []Example{
			{Description: "Run on every configured device", Command: "runmux run"},
		},
		Subcommands: []*Command{
			{Name: "run", Summary: "start sessions on configured devices"},
			{Name: "devices", Summary: "list connected devices"},
		},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	help := buffer.String()

	for _, want := range []string{
		"Drive multiple run daemons",
		"runmux <command> [flags]",
		"start sessions on configured devices",
		"list connected devices",
		"runmux run",
		"for more information on a command",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestSuggestCommand_Threshold(t *testing.T) {
	commands := []*Command{
		{Name: "devices"},
		{Name: "version"},
	}

	if got := suggestCommand("devises", commands); got != "devices" {
		t.Errorf("suggestCommand(devises) = %q, want devices", got)
	}
	if got := suggestCommand("completely-unrelated", commands); got != "" {
		t.Errorf("suggestCommand(unrelated) = %q, want empty", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"run", "ran", 1},
		{"devices", "devises", 1},
		{"watch", "wacth", 2},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
