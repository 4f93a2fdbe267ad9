// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package hlc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHybridTimeComponents(t *testing.T) {
	ht := New(123456, 7)
	require.Equal(t, int64(123456), ht.Micros())
	require.Equal(t, uint32(7), ht.Logical())
	require.True(t, ht.IsValid())
	require.False(t, Invalid.IsValid())
	require.True(t, FromMicros(100).Less(New(100, 1)))
	require.True(t, New(100, 1).Less(FromMicros(101)))
	require.True(t, New(100, 1).LessEq(New(100, 1)))
}

func TestClockMonotonic(t *testing.T) {
	wall := int64(1000)
	c := NewClock(func() int64 { return wall })

	first := c.Now()
	require.Equal(t, int64(1000), first.Micros())

	// The physical source is stalled, so readings tick the logical counter.
	second := c.Now()
	require.True(t, first.Less(second))
	require.Equal(t, first.Micros(), second.Micros())

	wall = 2000
	third := c.Now()
	require.True(t, second.Less(third))
	require.Equal(t, uint32(0), third.Logical())
}

func TestClockUpdate(t *testing.T) {
	wall := int64(1000)
	c := NewClock(func() int64 { return wall })

	remote := New(5000, 3)
	c.Update(remote)
	require.True(t, remote.Less(c.Now()))

	// Updates never move the clock backwards.
	c.Update(New(10, 0))
	require.True(t, remote.Less(c.Now()))

	// Invalid updates are ignored.
	c.Update(Invalid)
	require.True(t, remote.Less(c.Now()))
}

func TestClockLogicalOverflow(t *testing.T) {
	wall := int64(50)
	c := NewClock(func() int64 { return wall })
	prev := c.Now()
	for i := 0; i < MaxLogical+2; i++ {
		cur := c.Now()
		require.True(t, prev.Less(cur))
		prev = cur
	}
	// The overflow spilled into the physical component.
	require.Greater(t, prev.Micros(), int64(50))
}
