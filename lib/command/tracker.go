// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/runmux/runmux/lib/protocol"
)

// trackerShards is the number of lock shards in the correlation table.
const trackerShards = 16

// Tracker maps outstanding request IDs to single-use completion slots.
// Multiple Sender calls register and resolve concurrently; entries are
// sharded by ID hash so unrelated sessions' requests do not contend.
//
// IDs are allocated from an atomic counter scoped to this Tracker
// instance. An ID is registered at most once and never reused while
// outstanding.
type Tracker struct {
	nextID atomic.Int64
	shards [trackerShards]trackerShard
}

type trackerShard struct {
	mu      sync.Mutex
	pending map[string]chan *protocol.Response
}

// NewTracker returns an empty correlation table.
func NewTracker() *Tracker {
	tracker := &Tracker{}
	for i := range tracker.shards {
		tracker.shards[i].pending = make(map[string]chan *protocol.Response)
	}
	return tracker
}

// Register allocates a fresh correlation ID and a one-shot completion
// slot. The slot receives at most one response; the caller must either
// read it or Cancel the ID.
func (t *Tracker) Register() (int64, <-chan *protocol.Response) {
	id := t.nextID.Add(1)
	slot := make(chan *protocol.Response, 1)

	key := strconv.FormatInt(id, 10)
	shard := t.shard(key)
	shard.mu.Lock()
	shard.pending[key] = slot
	shard.mu.Unlock()

	return id, slot
}

// Resolve delivers a response to the slot registered under its ID.
// Returns true iff an outstanding registration existed; a response for
// an unknown or already-purged ID is the caller's cue to log and drop
// it.
func (t *Tracker) Resolve(id string, response *protocol.Response) bool {
	shard := t.shard(id)
	shard.mu.Lock()
	slot, ok := shard.pending[id]
	if ok {
		delete(shard.pending, id)
	}
	shard.mu.Unlock()

	if !ok {
		return false
	}
	slot <- response
	return true
}

// Cancel removes an outstanding registration, typically on timeout. A
// response arriving afterwards finds no entry and Resolve reports
// false.
func (t *Tracker) Cancel(id int64) {
	key := strconv.FormatInt(id, 10)
	shard := t.shard(key)
	shard.mu.Lock()
	delete(shard.pending, key)
	shard.mu.Unlock()
}

// Outstanding returns the number of unresolved registrations.
func (t *Tracker) Outstanding() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.Lock()
		total += len(t.shards[i].pending)
		t.shards[i].mu.Unlock()
	}
	return total
}

func (t *Tracker) shard(key string) *trackerShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return &t.shards[hash.Sum32()%trackerShards]
}
