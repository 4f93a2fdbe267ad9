// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package stop provides a Stopper that owns the lifetime of a set of async
// tasks. Conflict resolution attempts and wait-queue resume callbacks run as
// stopper tasks so that shutdown can drain them instead of abandoning them
// mid-flight.
package stop

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned by RunAsyncTask during or after shutdown.
var ErrUnavailable = errors.New("node unavailable; try another peer")

// A Stopper tracks async tasks and coordinates their shutdown. Tasks observe
// ShouldQuiesce and are expected to exit promptly once it closes; Stop blocks
// until every task has returned.
type Stopper struct {
	quiescer chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu struct {
		sync.Mutex
		quiescing bool
		numTasks  int
		quiesced  chan struct{}
	}
}

// NewStopper returns an initialized Stopper.
func NewStopper() *Stopper {
	s := &Stopper{
		quiescer: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.mu.quiesced = make(chan struct{})
	return s
}

// RunAsyncTask runs f in a goroutine tracked by the Stopper. The task name is
// used only for diagnostics. Returns ErrUnavailable if the Stopper is already
// quiescing, in which case f is not run.
func (s *Stopper) RunAsyncTask(ctx context.Context, name string, f func(context.Context)) error {
	if !s.addTask() {
		return ErrUnavailable
	}
	go func() {
		defer s.removeTask()
		f(ctx)
	}()
	return nil
}

func (s *Stopper) addTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		return false
	}
	s.mu.numTasks++
	return true
}

func (s *Stopper) removeTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.numTasks--
	if s.mu.quiescing && s.mu.numTasks == 0 {
		close(s.mu.quiesced)
	}
}

// ShouldQuiesce returns a channel that is closed when the Stopper begins
// shutting down. Long-running tasks select on it alongside their contexts.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	return s.quiescer
}

// IsStopped returns a channel that is closed once Stop has fully drained.
func (s *Stopper) IsStopped() <-chan struct{} {
	return s.stopped
}

// NumTasks returns the number of active tasks.
func (s *Stopper) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.numTasks
}

// Stop signals quiescence and blocks until all tasks have drained.
func (s *Stopper) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.mu.quiescing {
		s.mu.quiescing = true
		close(s.quiescer)
		if s.mu.numTasks == 0 {
			close(s.mu.quiesced)
		}
	}
	quiesced := s.mu.quiesced
	s.mu.Unlock()

	<-quiesced
	s.stopOnce.Do(func() { close(s.stopped) })
}
