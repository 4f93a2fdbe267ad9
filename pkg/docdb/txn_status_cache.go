// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"sync"

	"github.com/google/uuid"
)

// TxnStatusCache is a small LRU cache of transactions known to be finalized
// (committed or aborted). It avoids repeated status service lookups when
// successive resolution attempts keep rediscovering the intents of a
// finalized transaction whose cleanup lags.
//
// The zero value of this struct is ready for use.
type TxnStatusCache struct {
	mu   sync.Mutex
	ids  [8]uuid.UUID         // [MRU, ..., LRU]
	stat [8]TransactionStatus // parallel to ids
	n    int
}

func (c *TxnStatusCache) get(id uuid.UUID) (TransactionStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.getIdxLocked(id); idx >= 0 {
		s := c.stat[idx]
		c.moveFrontLocked(idx)
		return s, true
	}
	return TransactionStatus{}, false
}

// add records a finalized status. Pending statuses are ignored: they can go
// stale, and caching them would turn a stale read into a missed conflict.
func (c *TxnStatusCache) add(id uuid.UUID, s TransactionStatus) {
	if !s.State.IsFinalized() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.getIdxLocked(id); idx >= 0 {
		c.stat[idx] = s
		c.moveFrontLocked(idx)
		return
	}
	c.insertFrontLocked(id, s)
}

func (c *TxnStatusCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

func (c *TxnStatusCache) getIdxLocked(id uuid.UUID) int {
	for i := 0; i < c.n; i++ {
		if c.ids[i] == id {
			return i
		}
	}
	return -1
}

func (c *TxnStatusCache) moveFrontLocked(cur int) {
	id, s := c.ids[cur], c.stat[cur]
	copy(c.ids[1:cur+1], c.ids[:cur])
	copy(c.stat[1:cur+1], c.stat[:cur])
	c.ids[0], c.stat[0] = id, s
}

func (c *TxnStatusCache) insertFrontLocked(id uuid.UUID, s TransactionStatus) {
	copy(c.ids[1:], c.ids[:])
	copy(c.stat[1:], c.stat[:])
	c.ids[0], c.stat[0] = id, s
	if c.n < len(c.ids) {
		c.n++
	}
}
