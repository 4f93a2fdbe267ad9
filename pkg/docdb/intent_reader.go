// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"github.com/atolldb/atoll/pkg/docdb/dockv"
	"github.com/atolldb/atoll/pkg/storage"
	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ParsedIntent is one decoded intent record from the intents store.
type ParsedIntent struct {
	Path     dockv.DocKey
	Types    dockv.IntentTypeSet
	Time     dockv.DocHybridTime
	TxnID    uuid.UUID
	SubtxnID uint32
}

// IntentReader scans the intents store for intent records. Scans are
// ordered, single pass and not restartable; re-scanning requires a new call.
type IntentReader struct {
	reader storage.Reader
}

// NewIntentReader returns an IntentReader over the given intents store
// snapshot.
func NewIntentReader(r storage.Reader) IntentReader {
	return IntentReader{reader: r}
}

// ScanIntents visits every intent in [lower, upper) in key order. A decode
// failure aborts the scan with a decode error; it is never skipped, since a
// skipped record is a silently missed conflict.
func (r IntentReader) ScanIntents(lower, upper []byte, visit func(ParsedIntent) error) error {
	it, err := r.reader.NewIter(lower, upper)
	if err != nil {
		return errors.Wrap(err, "opening intent scan")
	}
	defer func() { _ = it.Close() }()

	for ok := it.First(); ok; ok = it.Next() {
		key, err := dockv.ParseIntentKey(it.Key())
		if err != nil {
			return NewDecodeError(err)
		}
		value, err := dockv.ParseIntentValue(it.Value())
		if err != nil {
			return NewDecodeError(errors.Wrapf(err, "intent at %v", key.Path))
		}
		intent := ParsedIntent{
			Path:     append(dockv.DocKey(nil), key.Path...),
			Types:    key.Types,
			Time:     key.Time,
			TxnID:    value.TxnID,
			SubtxnID: value.SubtxnID,
		}
		if err := visit(intent); err != nil {
			return err
		}
	}
	return errors.Wrap(it.Error(), "intent scan")
}

// ScanIntentsOnPath visits the intents written against exactly the given
// path, excluding child subtrees.
func (r IntentReader) ScanIntentsOnPath(path dockv.DocKey, visit func(ParsedIntent) error) error {
	lower, upper := dockv.IntentScanBounds(path)
	return r.ScanIntents(lower, upper, visit)
}

// readLatestCommitted returns the commit time of the newest committed
// version of path, if any. Version chains sort newest first, so this is the
// first entry of a bounded scan.
func readLatestCommitted(reader storage.Reader, path dockv.DocKey) (hlc.HybridTime, bool, error) {
	lower, upper := dockv.IntentScanBounds(path)
	it, err := reader.NewIter(lower, upper)
	if err != nil {
		return hlc.Invalid, false, errors.Wrap(err, "opening committed scan")
	}
	defer func() { _ = it.Close() }()

	if !it.First() {
		return hlc.Invalid, false, errors.Wrap(it.Error(), "committed scan")
	}
	_, commitTime, err := dockv.ParseCommittedKey(it.Key())
	if err != nil {
		return hlc.Invalid, false, NewDecodeError(err)
	}
	return commitTime, true, nil
}

// ReadCommittedValue returns the newest committed version of path visible at
// readTime, along with its commit time.
func ReadCommittedValue(
	reader storage.Reader, path dockv.DocKey, readTime hlc.HybridTime,
) (value []byte, commitTime hlc.HybridTime, found bool, err error) {
	lower, upper := dockv.IntentScanBounds(path)
	it, err := reader.NewIter(lower, upper)
	if err != nil {
		return nil, hlc.Invalid, false, errors.Wrap(err, "opening committed scan")
	}
	defer func() { _ = it.Close() }()

	for ok := it.First(); ok; ok = it.Next() {
		_, ct, err := dockv.ParseCommittedKey(it.Key())
		if err != nil {
			return nil, hlc.Invalid, false, NewDecodeError(err)
		}
		if ct.LessEq(readTime) {
			return append([]byte(nil), it.Value()...), ct, true, nil
		}
	}
	return nil, hlc.Invalid, false, errors.Wrap(it.Error(), "committed scan")
}
