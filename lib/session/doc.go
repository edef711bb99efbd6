// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package session multiplexes many supervised daemon processes behind
// one consumer-facing event stream. Each [Session] pairs a process
// supervisor with a command sender, a lifecycle phase, and a bounded
// log buffer; the [Registry] owns the collection, assigns identity,
// tags every inbound event with its session, and enforces the
// cross-session invariants (one session per device, bounded session
// count).
//
// Concurrency contract: every method that reads or mutates session
// state must be called from the single consumer loop draining
// [Registry.Events]. Background goroutines touch sessions only through
// the event stream and the command sender's internally-synchronized
// tracker. Operations returned by [Registry.ReloadOp], [Registry.StopOp]
// and friends capture what they need under that contract and are then
// safe to run from any goroutine.
package session
