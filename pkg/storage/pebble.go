// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Pebble is an Engine backed by a pebble database.
type Pebble struct {
	db *pebble.DB
}

var _ Engine = (*Pebble)(nil)

// Open opens or creates a pebble-backed engine at the given directory.
func Open(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble store at %s", dir)
	}
	return &Pebble{db: db}, nil
}

// NewInMem returns an engine backed by an in-memory filesystem, for tests
// and ephemeral stores.
func NewInMem() *Pebble {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		// In-memory open only fails on programmer error.
		panic(err)
	}
	return &Pebble{db: db}
}

// NewIter implements Reader.
func (p *Pebble) NewIter(lower, upper []byte) (Iterator, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

// Get implements Reader.
func (p *Pebble) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set implements Writer.
func (p *Pebble) Set(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

// Delete implements Writer.
func (p *Pebble) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

// Close implements Engine.
func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleIterator struct {
	it *pebble.Iterator
}

var _ Iterator = (*pebbleIterator)(nil)

func (i *pebbleIterator) SeekGE(key []byte) bool { return i.it.SeekGE(key) }
func (i *pebbleIterator) First() bool            { return i.it.First() }
func (i *pebbleIterator) Valid() bool            { return i.it.Valid() }
func (i *pebbleIterator) Next() bool             { return i.it.Next() }
func (i *pebbleIterator) Key() []byte            { return i.it.Key() }
func (i *pebbleIterator) Value() []byte          { return i.it.Value() }
func (i *pebbleIterator) Error() error           { return i.it.Error() }
func (i *pebbleIterator) Close() error           { return i.it.Close() }
