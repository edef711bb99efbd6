// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the line-oriented wire codec spoken by
// the build tool's daemon over stdio. Each protocol line carries one
// JSON payload wrapped in a single-element array: "[{...}]". Lines
// without the outer bracket pair are plain console output, not
// protocol traffic.
//
// The codec is pure: envelope stripping and message classification are
// deterministic functions with no I/O and no state. Malformed input is
// reported by a false ok value, never a panic — the daemon's stdout is
// untrusted and routinely interleaves free-form text with protocol
// lines.
package protocol
