// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"testing"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTxnStatusCacheBasic(t *testing.T) {
	var c TxnStatusCache
	id := uuid.New()

	_, ok := c.get(id)
	require.False(t, ok)

	c.add(id, TransactionStatus{State: TxnCommitted, CommitTime: hlc.FromMicros(5)})
	s, ok := c.get(id)
	require.True(t, ok)
	require.Equal(t, TxnCommitted, s.State)
	require.Equal(t, hlc.FromMicros(5), s.CommitTime)
}

func TestTxnStatusCacheIgnoresPending(t *testing.T) {
	var c TxnStatusCache
	id := uuid.New()

	c.add(id, TransactionStatus{State: TxnPending})
	_, ok := c.get(id)
	require.False(t, ok)
}

func TestTxnStatusCacheEvictsLRU(t *testing.T) {
	var c TxnStatusCache
	ids := make([]uuid.UUID, 9)
	for i := range ids {
		ids[i] = uuid.New()
		c.add(ids[i], TransactionStatus{State: TxnAborted})
	}

	// Nine inserts into eight slots: the first id is the LRU and is gone.
	_, ok := c.get(ids[0])
	require.False(t, ok)
	for _, id := range ids[1:] {
		_, ok := c.get(id)
		require.True(t, ok)
	}
}

func TestTxnStatusCacheTouchOnGet(t *testing.T) {
	var c TxnStatusCache
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
		c.add(ids[i], TransactionStatus{State: TxnAborted})
	}

	// Touch the LRU, then insert. The second-oldest entry is evicted
	// instead.
	_, ok := c.get(ids[0])
	require.True(t, ok)
	c.add(uuid.New(), TransactionStatus{State: TxnAborted})

	_, ok = c.get(ids[0])
	require.True(t, ok)
	_, ok = c.get(ids[1])
	require.False(t, ok)
}

func TestTxnStatusCacheUpdateExisting(t *testing.T) {
	var c TxnStatusCache
	id := uuid.New()

	c.add(id, TransactionStatus{State: TxnAborted})
	c.add(id, TransactionStatus{State: TxnCommitted, CommitTime: hlc.FromMicros(7)})

	s, ok := c.get(id)
	require.True(t, ok)
	require.Equal(t, TxnCommitted, s.State)

	c.clear()
	_, ok = c.get(id)
	require.False(t, ok)
}
