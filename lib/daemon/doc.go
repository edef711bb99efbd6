// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon supervises one spawned build-tool daemon process. A
// [Supervisor] owns the process's three I/O streams through three
// goroutines: a stdout reader, a stderr reader, and a stdin writer.
// The loops communicate with the owner only through the event sink and
// the input queue — no shared mutable state crosses a loop boundary.
//
// Line delivery applies backpressure: a slow consumer stalls the
// reader rather than dropping daemon output. Exit notification is
// owned by the stdout loop, which emits exactly one [EventExited] per
// process lifetime when the stream closes.
package daemon
