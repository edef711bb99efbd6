// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package logring provides a capacity-bounded append-only buffer for
// session logs. When the buffer is full, appends evict the oldest
// entries. The ring is not synchronized: per the engine's concurrency
// model, each session's ring is mutated only by the single consumer
// loop, so the hot render path takes no locks.
package logring

// Ring is a bounded FIFO over entries of type T.
type Ring[T any] struct {
	entries  []T
	capacity int

	// dropped counts entries evicted since creation, so the UI can
	// show "N earlier lines dropped".
	dropped int
}

// New returns a Ring holding at most capacity entries. Panics if
// capacity is not positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("non-positive logring capacity")
	}
	return &Ring[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds one entry, evicting from the head if full.
func (r *Ring[T]) Append(entry T) {
	r.AppendBatch([]T{entry})
}

// AppendBatch adds entries in order, evicting from the head as needed.
// A batch larger than the capacity keeps only its newest entries.
func (r *Ring[T]) AppendBatch(batch []T) {
	if len(batch) > r.capacity {
		r.dropped += len(batch) - r.capacity
		batch = batch[len(batch)-r.capacity:]
	}
	overflow := len(r.entries) + len(batch) - r.capacity
	if overflow > 0 {
		r.dropped += overflow
		r.entries = append(r.entries[:0], r.entries[overflow:]...)
	}
	r.entries = append(r.entries, batch...)
}

// Snapshot returns a copy of the current entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	snapshot := make([]T, len(r.entries))
	copy(snapshot, r.entries)
	return snapshot
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int { return len(r.entries) }

// Dropped returns the number of entries evicted since creation.
func (r *Ring[T]) Dropped() int { return r.dropped }
