// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Command runmux drives multiple build-tool run daemons from one
// terminal: one session per device, with hot reload, restart, and
// stop per session while the logs stream side by side.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		// Commands that print their own output (like devices) return
		// an ExitError with the desired exit code. Don't print a
		// redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
