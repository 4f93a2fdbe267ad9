// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package waitqueue implements the local wait queue consumed by wait-policy
// conflict resolution. Waiters register against the set of transactions
// blocking them and are resumed, through the stopper, once every blocker has
// been signalled finalized. Resume order across waiters of the same blocker
// is unspecified. Distributed deadlock detection is out of scope; cycles are
// broken by the caller's operation timeout.
package waitqueue

import (
	"context"
	"sync"

	"github.com/atolldb/atoll/pkg/util/stop"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config contains the dependencies to construct a Queue.
type Config struct {
	Stopper *stop.Stopper
	Log     *zap.Logger
}

func (c *Config) initDefaults() {
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
}

// Queue tracks operations waiting on conflicting transactions.
type Queue struct {
	cfg Config

	mu struct {
		sync.Mutex
		waiters   map[uuid.UUID]*waiter
		byBlocker map[uuid.UUID]map[*waiter]struct{}
	}
}

type waiter struct {
	id      uuid.UUID
	pending map[uuid.UUID]struct{}
	resume  func(error)
}

// New returns an empty Queue.
func New(cfg Config) *Queue {
	cfg.initDefaults()
	q := &Queue{cfg: cfg}
	q.mu.waiters = make(map[uuid.UUID]*waiter)
	q.mu.byBlocker = make(map[uuid.UUID]map[*waiter]struct{})
	return q
}

// RegisterWaiter registers waiterID as blocked on the given transactions.
// resume fires exactly once, through the stopper, after every blocker has
// been signalled finalized, unless the waiter is cancelled first. A waiter
// id may only be registered once at a time.
func (q *Queue) RegisterWaiter(
	ctx context.Context, waiterID uuid.UUID, blockers []uuid.UUID, resume func(error),
) error {
	if len(blockers) == 0 {
		return errors.AssertionFailedf("waiter %s registered with no blockers", waiterID)
	}
	q.mu.Lock()
	if _, ok := q.mu.waiters[waiterID]; ok {
		q.mu.Unlock()
		return errors.AssertionFailedf("waiter %s already registered", waiterID)
	}
	w := &waiter{
		id:      waiterID,
		pending: make(map[uuid.UUID]struct{}, len(blockers)),
		resume:  resume,
	}
	for _, b := range blockers {
		w.pending[b] = struct{}{}
		set := q.mu.byBlocker[b]
		if set == nil {
			set = make(map[*waiter]struct{})
			q.mu.byBlocker[b] = set
		}
		set[w] = struct{}{}
	}
	q.mu.waiters[waiterID] = w
	q.mu.Unlock()

	q.cfg.Log.Debug("waiter registered",
		zap.Stringer("waiter", waiterID), zap.Int("blockers", len(blockers)))
	return nil
}

// CancelWaiter deregisters the waiter, if still present. Its resume callback
// will not fire afterwards.
func (q *Queue) CancelWaiter(waiterID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.mu.waiters[waiterID]
	if !ok {
		return
	}
	q.removeLocked(w)
}

// TxnFinalized signals that a transaction has committed or aborted. Every
// waiter whose pending set drains to empty is resumed asynchronously.
func (q *Queue) TxnFinalized(id uuid.UUID) {
	var ready []*waiter
	q.mu.Lock()
	for w := range q.mu.byBlocker[id] {
		delete(w.pending, id)
		if len(w.pending) == 0 {
			ready = append(ready, w)
			q.removeLocked(w)
		}
	}
	delete(q.mu.byBlocker, id)
	q.mu.Unlock()

	for _, w := range ready {
		w := w
		q.cfg.Log.Debug("resuming waiter",
			zap.Stringer("waiter", w.id), zap.Stringer("finalized", id))
		if err := q.cfg.Stopper.RunAsyncTask(
			context.Background(), "waitqueue-resume", func(ctx context.Context) {
				w.resume(nil)
			},
		); err != nil {
			// Shutting down. Deliver the error synchronously so the waiter
			// does not hang.
			w.resume(err)
		}
	}
}

// removeLocked unlinks w from the waiter and blocker indexes.
func (q *Queue) removeLocked(w *waiter) {
	delete(q.mu.waiters, w.id)
	for b := range w.pending {
		if set := q.mu.byBlocker[b]; set != nil {
			delete(set, w)
			if len(set) == 0 {
				delete(q.mu.byBlocker, b)
			}
		}
	}
}

// NumWaiters returns the number of registered waiters.
func (q *Queue) NumWaiters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mu.waiters)
}
