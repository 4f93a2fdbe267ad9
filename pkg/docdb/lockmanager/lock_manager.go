// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package lockmanager implements the shared in-memory lock manager that
// serializes conflicting operations on the same store before they reach
// conflict resolution. Locks are held at intent-type granularity: multiple
// holders may share a key as long as their intent type sets are compatible
// under the same matrix that governs intent conflicts.
package lockmanager

import (
	"bytes"
	"context"
	"sync"

	"github.com/atolldb/atoll/pkg/docdb/dockv"
	"github.com/google/btree"
)

// Entry is one key of a lock acquisition: the encoded path and the intent
// types to hold on it.
type Entry struct {
	Key   dockv.DocKey
	Types dockv.IntentTypeSet
}

// Manager is a shared lock manager. The zero value is not usable; construct
// with New.
type Manager struct {
	mu    sync.Mutex
	locks *btree.BTree
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{locks: btree.New(16)}
}

// lockedKey is the per-key lock state: a reference count per intent type
// plus the channels of waiters blocked on the key.
type lockedKey struct {
	key     []byte
	counts  [4]int
	waiters []chan struct{}
}

func (lk *lockedKey) Less(other btree.Item) bool {
	return bytes.Compare(lk.key, other.(*lockedKey).key) < 0
}

func (lk *lockedKey) heldTypes() dockv.IntentTypeSet {
	var s dockv.IntentTypeSet
	for t := dockv.IntentType(0); t < 4; t++ {
		if lk.counts[t] > 0 {
			s |= 1 << t
		}
	}
	return s
}

func (lk *lockedKey) empty() bool {
	return lk.heldTypes().Empty() && len(lk.waiters) == 0
}

func (lk *lockedKey) acquire(types dockv.IntentTypeSet) {
	for t := dockv.IntentType(0); t < 4; t++ {
		if types.Contains(t) {
			lk.counts[t]++
		}
	}
}

func (lk *lockedKey) release(types dockv.IntentTypeSet) {
	for t := dockv.IntentType(0); t < 4; t++ {
		if types.Contains(t) {
			lk.counts[t]--
			if lk.counts[t] < 0 {
				panic("lockmanager: released a lock that was not held")
			}
		}
	}
	// Wake every waiter. Waiters re-check compatibility under the manager
	// lock, so spurious wakeups are harmless.
	for _, ch := range lk.waiters {
		close(ch)
	}
	lk.waiters = nil
}

func (m *Manager) getOrCreateLocked(key []byte) *lockedKey {
	if it := m.locks.Get(&lockedKey{key: key}); it != nil {
		return it.(*lockedKey)
	}
	lk := &lockedKey{key: key}
	m.locks.ReplaceOrInsert(lk)
	return lk
}

// lockOne blocks until the entry's types can be held on its key, or until
// the context is cancelled.
func (m *Manager) lockOne(ctx context.Context, e Entry) error {
	for {
		m.mu.Lock()
		lk := m.getOrCreateLocked(e.Key)
		if !dockv.IntentTypeSetsConflict(lk.heldTypes(), e.Types) {
			lk.acquire(e.Types)
			m.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		lk.waiters = append(lk.waiters, ch)
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			m.removeWaiter(e.Key, ch)
			return ctx.Err()
		}
	}
}

func (m *Manager) removeWaiter(key []byte, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.locks.Get(&lockedKey{key: key})
	if it == nil {
		return
	}
	lk := it.(*lockedKey)
	for i, w := range lk.waiters {
		if w == ch {
			lk.waiters = append(lk.waiters[:i], lk.waiters[i+1:]...)
			break
		}
	}
	if lk.empty() {
		m.locks.Delete(lk)
	}
}

// unlockOne releases the entry's types on its key.
func (m *Manager) unlockOne(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.locks.Get(&lockedKey{key: e.Key})
	if it == nil {
		panic("lockmanager: unlocking an unknown key")
	}
	lk := it.(*lockedKey)
	lk.release(e.Types)
	if lk.empty() {
		m.locks.Delete(lk)
	}
}

// lockAll acquires the entries in key order, releasing everything already
// acquired if the context is cancelled partway through. Ordered acquisition
// keeps concurrent batches from deadlocking against each other.
func (m *Manager) lockAll(ctx context.Context, entries []Entry) error {
	for i, e := range entries {
		if err := m.lockOne(ctx, e); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.unlockOne(entries[j])
			}
			return err
		}
	}
	return nil
}

func (m *Manager) unlockAll(entries []Entry) {
	// Release in reverse key order.
	for i := len(entries) - 1; i >= 0; i-- {
		m.unlockOne(entries[i])
	}
}

// heldKeyCount returns the number of keys with at least one holder, for
// introspection in tests.
func (m *Manager) heldKeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	m.locks.Ascend(func(it btree.Item) bool {
		if !it.(*lockedKey).heldTypes().Empty() {
			n++
		}
		return true
	})
	return n
}
