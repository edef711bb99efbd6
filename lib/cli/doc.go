// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the runmux command-line framework: a small
// command tree with pflag flag parsing, structured help output, typo
// suggestions for unknown commands and flags, and a stderr logger
// that switches between human-readable and JSON output depending on
// whether stderr is a terminal.
//
// The tree is declarative. Each command declares its name, summary,
// flags, and either a Run function or subcommands; Execute walks the
// tree and dispatches. Commands return errors rather than calling
// os.Exit so main owns process termination.
package cli
