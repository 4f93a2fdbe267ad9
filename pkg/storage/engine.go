// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package storage provides the narrow LSM engine abstraction backing the
// document stores. A store pair consists of two engines: one holding
// committed document versions and one holding provisional data (intents and
// transaction metadata).
package storage

// Iterator iterates over an engine's key space in lexicographic order within
// the bounds it was opened with. Returned key and value slices are only
// valid until the next positioning call; callers retaining them must copy.
type Iterator interface {
	// SeekGE positions the iterator at the first key >= the given key and
	// reports whether such a key exists within bounds.
	SeekGE(key []byte) bool
	// First positions the iterator at the first key within bounds.
	First() bool
	// Valid reports whether the iterator is positioned at a key.
	Valid() bool
	// Next advances and reports whether the new position is valid.
	Next() bool
	// Key returns the current key.
	Key() []byte
	// Value returns the current value.
	Value() []byte
	// Error returns the first error encountered while iterating. It must be
	// checked after iteration completes: a scan that stopped early because of
	// an I/O error is indistinguishable from exhaustion otherwise.
	Error() error
	// Close releases the iterator.
	Close() error
}

// Reader is the read half of an engine.
type Reader interface {
	// NewIter opens an iterator over [lower, upper).
	NewIter(lower, upper []byte) (Iterator, error)
	// Get returns the value of key, a flag reporting whether it was found,
	// and any error. The returned value is a copy.
	Get(key []byte) ([]byte, bool, error)
}

// Writer is the write half of an engine.
type Writer interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Engine is a complete LSM store handle.
type Engine interface {
	Reader
	Writer
	Close() error
}
