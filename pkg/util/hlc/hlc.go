// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package hlc implements the hybrid logical clock used to timestamp
// provisional and committed document versions. A HybridTime packs a physical
// microsecond reading and a logical counter into a single uint64 so that
// timestamps are cheap to copy, compare and encode.
package hlc

import (
	"sync"
	"time"

	"github.com/cockroachdb/redact"
)

// LogicalBits is the number of low bits of a HybridTime reserved for the
// logical component.
const LogicalBits = 12

// MaxLogical is the largest logical value representable in a HybridTime.
const MaxLogical = (1 << LogicalBits) - 1

// HybridTime is a hybrid logical timestamp: physical microseconds since the
// Unix epoch shifted left by LogicalBits, ORed with a logical counter. The
// zero value is invalid and means "unset".
type HybridTime uint64

// Invalid is the unset HybridTime.
const Invalid HybridTime = 0

// Max sorts after every valid HybridTime.
const Max HybridTime = 1<<64 - 1

// New constructs a HybridTime from a physical microsecond reading and a
// logical counter. The logical value must not exceed MaxLogical.
func New(micros int64, logical uint32) HybridTime {
	return HybridTime(uint64(micros)<<LogicalBits | uint64(logical)&MaxLogical)
}

// FromMicros constructs a HybridTime with a zero logical component.
func FromMicros(micros int64) HybridTime {
	return New(micros, 0)
}

// Micros returns the physical component, in microseconds since the epoch.
func (t HybridTime) Micros() int64 {
	return int64(t >> LogicalBits)
}

// Logical returns the logical component.
func (t HybridTime) Logical() uint32 {
	return uint32(t & MaxLogical)
}

// IsValid reports whether t is set.
func (t HybridTime) IsValid() bool {
	return t != Invalid
}

// Less reports whether t sorts strictly before u.
func (t HybridTime) Less(u HybridTime) bool {
	return t < u
}

// LessEq reports whether t sorts before or equal to u.
func (t HybridTime) LessEq(u HybridTime) bool {
	return t <= u
}

// GoTime returns the physical component as a time.Time.
func (t HybridTime) GoTime() time.Time {
	return time.UnixMicro(t.Micros())
}

// String renders the timestamp as "micros.logical".
func (t HybridTime) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements redact.SafeFormatter. Timestamps carry no user data
// and are always safe to log.
func (t HybridTime) SafeFormat(w redact.SafePrinter, _ rune) {
	if !t.IsValid() {
		w.SafeString("<invalid>")
		return
	}
	w.Printf("%d.%d", t.Micros(), t.Logical())
}

var _ redact.SafeFormatter = HybridTime(0)

// WallClock is the physical time source backing a Clock.
type WallClock func() int64

// Clock is a hybrid logical clock. Readings are monotonically increasing
// even when the physical source jumps backwards, and Update ratchets the
// clock forward past timestamps observed from other nodes.
type Clock struct {
	wall WallClock

	mu struct {
		sync.Mutex
		lastMicros int64
		logical    uint32
	}
}

// NewClock returns a Clock backed by the provided physical source, or by
// time.Now if wall is nil.
func NewClock(wall WallClock) *Clock {
	if wall == nil {
		wall = func() int64 { return time.Now().UnixMicro() }
	}
	return &Clock{wall: wall}
}

// Now returns a HybridTime greater than every previous reading or update.
func (c *Clock) Now() HybridTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	micros := c.wall()
	if micros > c.mu.lastMicros {
		c.mu.lastMicros = micros
		c.mu.logical = 0
	} else {
		// Physical source stalled or regressed. Tick the logical component.
		c.mu.logical++
		if c.mu.logical > MaxLogical {
			c.mu.lastMicros++
			c.mu.logical = 0
		}
	}
	return New(c.mu.lastMicros, c.mu.logical)
}

// Update ratchets the clock forward so that subsequent readings are greater
// than the observed timestamp. Invalid timestamps are ignored.
func (c *Clock) Update(observed HybridTime) {
	if !observed.IsValid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if observed.Micros() > c.mu.lastMicros ||
		(observed.Micros() == c.mu.lastMicros && observed.Logical() > c.mu.logical) {
		c.mu.lastMicros = observed.Micros()
		c.mu.logical = observed.Logical()
	}
}

// PhysicalTime returns the current reading of the physical source.
func (c *Clock) PhysicalTime() time.Time {
	return time.UnixMicro(c.wall())
}
