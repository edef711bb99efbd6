// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package command correlates outbound daemon commands with their
// responses. A [Tracker] is the shared table of outstanding request
// IDs; a [Sender] allocates an ID, registers it, writes the serialized
// command to the daemon's stdin queue, and waits for resolution,
// timeout, or channel closure — exactly one of the three per call.
//
// The tracker is the only structure in the engine shared by concurrent
// tasks, so it shards its correlation map to keep unrelated sessions'
// requests from serializing on one lock. Everything else in the engine
// is single-consumer by construction.
package command
