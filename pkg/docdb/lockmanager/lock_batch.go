// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package lockmanager

import (
	"context"
	"sort"
	"sync"

	"github.com/atolldb/atoll/pkg/docdb/dockv"
)

// LockBatch is the set of key locks held for one operation. The caller owns
// its lifecycle; conflict resolution may Unlock and later re-Lock it while
// waiting, per the explicit release/reacquire protocol. A batch is always in
// one of two states, fully held or fully released, never partially held.
type LockBatch struct {
	mgr *Manager

	mu      sync.Mutex
	entries []Entry
	held    bool
}

// AcquireBatch sorts and merges the entries by key, then blocks until every
// key is held. On error (context cancellation) nothing remains held.
func (m *Manager) AcquireBatch(ctx context.Context, entries []Entry) (*LockBatch, error) {
	merged := mergeEntries(entries)
	if err := m.lockAll(ctx, merged); err != nil {
		return nil, err
	}
	return &LockBatch{mgr: m, entries: merged, held: true}, nil
}

// mergeEntries sorts entries by key and merges duplicate keys by unioning
// their type sets.
func mergeEntries(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key.Compare(sorted[j].Key) < 0
	})
	out := sorted[:0]
	for _, e := range sorted {
		if n := len(out); n > 0 && out[n-1].Key.Equal(e.Key) {
			out[n-1].Types = out[n-1].Types.Union(e.Types)
			continue
		}
		out = append(out, e)
	}
	return out
}

// Unlock releases every key in the batch. It is idempotent.
func (b *LockBatch) Unlock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.held {
		return
	}
	b.mgr.unlockAll(b.entries)
	b.held = false
}

// Lock re-acquires every key in the batch after an Unlock. On error nothing
// remains held.
func (b *LockBatch) Lock(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held {
		return nil
	}
	if err := b.mgr.lockAll(ctx, b.entries); err != nil {
		return err
	}
	b.held = true
	return nil
}

// Held reports whether the batch currently holds its keys.
func (b *LockBatch) Held() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}

// Empty reports whether the batch covers no keys.
func (b *LockBatch) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) == 0
}

// HeldKeys returns the keys currently held by the batch, in key order. The
// result is empty when the batch is released.
func (b *LockBatch) HeldKeys() []dockv.DocKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.held {
		return nil
	}
	keys := make([]dockv.DocKey, len(b.entries))
	for i, e := range b.entries {
		keys[i] = e.Key
	}
	return keys
}
