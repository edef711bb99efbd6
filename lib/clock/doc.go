// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects [Real]; tests inject [Fake] and advance time explicitly, so
// command timeouts, shutdown grace periods, and batch flush ticks are
// deterministic under test.
package clock
