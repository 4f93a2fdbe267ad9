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

// ProvisionalWriter writes a transaction's provisional state into the
// intents store: one strong intent per write target, weak intents on every
// ancestor prefix, and the transaction metadata record. It is used after a
// successful resolution, while the operation's lock batch is still held.
//
// A ProvisionalWriter is bound to one transaction and is not safe for
// concurrent use.
type ProvisionalWriter struct {
	intents storage.Writer
	meta    dockv.TransactionMetadata

	// writeID orders intents written at the same hybrid time.
	writeID uint32
	// metaWritten dedupes the metadata record across batches.
	metaWritten bool
}

// NewProvisionalWriter returns a writer for the given transaction over the
// intents store.
func NewProvisionalWriter(intents storage.Writer, meta dockv.TransactionMetadata) (*ProvisionalWriter, error) {
	if meta.ID == uuid.Nil {
		return nil, errors.AssertionFailedf("provisional writer requires a transaction id")
	}
	return &ProvisionalWriter{intents: intents, meta: meta}, nil
}

// WriteIntent writes the provisional version of one target path at the
// given hybrid time: the full intent type set for the transaction's
// isolation level on the path itself, the weak footprint on every ancestor,
// and the metadata record if this is the transaction's first write.
func (w *ProvisionalWriter) WriteIntent(
	path dockv.DocKey, subtxnID uint32, t hlc.HybridTime, payload []byte,
) error {
	return w.writeIntent(path, dockv.WriteIntentTypes(w.meta.Isolation), subtxnID, t, payload)
}

// WriteLockIntent writes the provisional footprint of an explicit row lock.
// Lock intents carry no payload.
func (w *ProvisionalWriter) WriteLockIntent(
	path dockv.DocKey, strength dockv.RowLockStrength, subtxnID uint32, t hlc.HybridTime,
) error {
	return w.writeIntent(path, dockv.LockIntentTypes(strength), subtxnID, t, nil)
}

func (w *ProvisionalWriter) writeIntent(
	path dockv.DocKey, types dockv.IntentTypeSet, subtxnID uint32, t hlc.HybridTime, payload []byte,
) error {
	if types.Empty() {
		return errors.AssertionFailedf("empty intent type set for %v", path)
	}
	if !t.IsValid() {
		return errors.AssertionFailedf("invalid provisional time for %v", path)
	}
	if !w.metaWritten {
		if err := w.intents.Set(
			dockv.TransactionMetadataKey(w.meta.ID), dockv.EncodeTransactionMetadata(w.meta),
		); err != nil {
			return errors.Wrap(err, "writing transaction metadata")
		}
		w.metaWritten = true
	}

	value := dockv.EncodeIntentValue(w.meta.ID, subtxnID, payload)
	dht := dockv.DocHybridTime{Time: t, WriteID: w.nextWriteID()}
	if err := w.intents.Set(dockv.EncodeIntentKey(path, types, dht), value); err != nil {
		return errors.Wrapf(err, "writing intent on %v", path)
	}

	weak := types.MakeWeak()
	for _, anc := range path.AncestorPrefixes() {
		dht := dockv.DocHybridTime{Time: t, WriteID: w.nextWriteID()}
		if err := w.intents.Set(dockv.EncodeIntentKey(anc, weak, dht), value); err != nil {
			return errors.Wrapf(err, "writing ancestor intent on %v", anc)
		}
	}
	return nil
}

func (w *ProvisionalWriter) nextWriteID() uint32 {
	id := w.writeID
	w.writeID++
	return id
}

// ApplyCommit moves a committed transaction's provisional versions on the
// given paths into the committed store at the commit time and removes them,
// along with their ancestor footprints and the metadata record. Intents of
// aborted subtransactions are removed without producing committed versions.
//
// ApplyCommit is idempotent: re-applying after a partial failure finds
// fewer (or no) intents and converges to the same state.
func ApplyCommit(
	regular storage.Writer,
	intents storage.Engine,
	txnID uuid.UUID,
	paths []dockv.DocKey,
	commitTime hlc.HybridTime,
	abortedSubtxns map[uint32]struct{},
) error {
	if !commitTime.IsValid() {
		return errors.AssertionFailedf("commit requires a valid commit time")
	}
	reader := NewIntentReader(intents)
	for _, path := range paths {
		for _, scanPath := range commitScanPaths(path) {
			var toDelete [][]byte
			var committed []ParsedIntent
			target := scanPath.Equal(path)
			if err := reader.ScanIntentsOnPath(scanPath, func(in ParsedIntent) error {
				if in.TxnID != txnID {
					return nil
				}
				toDelete = append(toDelete, dockv.EncodeIntentKey(in.Path, in.Types, in.Time))
				if _, aborted := abortedSubtxns[in.SubtxnID]; aborted {
					return nil
				}
				if target && in.Types.Contains(dockv.StrongWrite) {
					committed = append(committed, in)
				}
				return nil
			}); err != nil {
				return err
			}
			for _, in := range committed {
				v, found, err := intents.Get(dockv.EncodeIntentKey(in.Path, in.Types, in.Time))
				if err != nil {
					return errors.Wrapf(err, "reading intent payload on %v", in.Path)
				}
				if !found {
					continue
				}
				pv, err := dockv.ParseIntentValue(v)
				if err != nil {
					return NewDecodeError(err)
				}
				if err := regular.Set(dockv.EncodeCommittedKey(in.Path, commitTime), pv.Payload); err != nil {
					return errors.Wrapf(err, "writing committed version of %v", in.Path)
				}
			}
			for _, k := range toDelete {
				if err := intents.Delete(k); err != nil {
					return errors.Wrap(err, "removing intent")
				}
			}
		}
	}
	return errors.Wrap(intents.Delete(dockv.TransactionMetadataKey(txnID)),
		"removing transaction metadata")
}

// ApplyAbort removes an aborted transaction's intents on the given paths,
// their ancestor footprints, and the metadata record. Idempotent like
// ApplyCommit.
func ApplyAbort(intents storage.Engine, txnID uuid.UUID, paths []dockv.DocKey) error {
	reader := NewIntentReader(intents)
	for _, path := range paths {
		for _, scanPath := range commitScanPaths(path) {
			var toDelete [][]byte
			if err := reader.ScanIntentsOnPath(scanPath, func(in ParsedIntent) error {
				if in.TxnID == txnID {
					toDelete = append(toDelete, dockv.EncodeIntentKey(in.Path, in.Types, in.Time))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, k := range toDelete {
				if err := intents.Delete(k); err != nil {
					return errors.Wrap(err, "removing intent")
				}
			}
		}
	}
	return errors.Wrap(intents.Delete(dockv.TransactionMetadataKey(txnID)),
		"removing transaction metadata")
}

// commitScanPaths returns the target path plus its ancestor prefixes, the
// set of paths a target's provisional footprint was written against.
func commitScanPaths(path dockv.DocKey) []dockv.DocKey {
	out := append([]dockv.DocKey{path}, path.AncestorPrefixes()...)
	return out
}
