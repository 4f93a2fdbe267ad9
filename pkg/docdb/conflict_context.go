// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"math"
	"sort"

	"github.com/atolldb/atoll/pkg/docdb/dockv"
	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// intentRequirement is one key of an operation's intent footprint: the path,
// the intent types the operation needs to hold there, and whether the path
// is a full target (as opposed to an ancestor prefix carrying only the weak
// footprint).
type intentRequirement struct {
	path       dockv.DocKey
	types      dockv.IntentTypeSet
	fullTarget bool
}

// requirementSet accumulates requirements, merging duplicates by path.
type requirementSet struct {
	byPath map[string]*intentRequirement
}

func newRequirementSet() *requirementSet {
	return &requirementSet{byPath: make(map[string]*intentRequirement)}
}

// addTarget adds a full-target requirement plus the weak footprint on every
// ancestor prefix of the path.
func (s *requirementSet) addTarget(path dockv.DocKey, types dockv.IntentTypeSet) {
	s.add(path, types, true)
	weak := types.MakeWeak()
	for _, anc := range path.AncestorPrefixes() {
		s.add(anc, weak, false)
	}
}

func (s *requirementSet) add(path dockv.DocKey, types dockv.IntentTypeSet, fullTarget bool) {
	if r, ok := s.byPath[string(path)]; ok {
		r.types = r.types.Union(types)
		r.fullTarget = r.fullTarget || fullTarget
		return
	}
	s.byPath[string(path)] = &intentRequirement{
		path:       append(dockv.DocKey(nil), path...),
		types:      types,
		fullTarget: fullTarget,
	}
}

// sorted returns the requirements in key order, for deterministic scans.
func (s *requirementSet) sorted() []intentRequirement {
	out := make([]intentRequirement, 0, len(s.byPath))
	for _, r := range s.byPath {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].path.Compare(out[j].path) < 0
	})
	return out
}

// conflictingTxn is the transient per-attempt record of one conflicting
// transaction: the blocking intent types it holds, broken out per
// subtransaction so that savepoint rollbacks can be filtered, plus the
// metadata and status snapshots once resolved.
type conflictingTxn struct {
	id uuid.UUID
	// typesBySubtxn holds the union of blocking intent types per writing
	// subtransaction. Subtransaction 0 is the transaction's main line.
	typesBySubtxn map[uint32]dockv.IntentTypeSet

	meta      dockv.TransactionMetadata
	metaFound bool
	status    TransactionStatus
}

func (c *conflictingTxn) addIntent(subtxnID uint32, types dockv.IntentTypeSet) {
	if c.typesBySubtxn == nil {
		c.typesBySubtxn = make(map[uint32]dockv.IntentTypeSet)
	}
	c.typesBySubtxn[subtxnID] = c.typesBySubtxn[subtxnID].Union(types)
}

// blockingTypes returns the union of intent types still blocking after
// excluding aborted subtransactions. An empty result means every blocking
// intent belongs to a rolled-back savepoint and the conflict is moot.
func (c *conflictingTxn) blockingTypes(abortedSubtxns map[uint32]struct{}) dockv.IntentTypeSet {
	var s dockv.IntentTypeSet
	for subtxn, types := range c.typesBySubtxn {
		if subtxn != 0 {
			if _, aborted := abortedSubtxns[subtxn]; aborted {
				continue
			}
		}
		s = s.Union(types)
	}
	return s
}

// priority returns the conflictor's priority. A conflictor with no metadata
// record never reaches a priority comparison: it is treated as aborted
// before the policy runs.
func (c *conflictingTxn) priority() uint64 {
	return c.meta.Priority
}

// conflictResolverContext is the per-kind half of a resolution attempt:
// transactional requests and non-transactional operations build their intent
// footprints differently and disagree on what a committed conflict means.
type conflictResolverContext interface {
	// requirements returns the operation's intent footprint.
	requirements() []intentRequirement
	// requesterID is the requesting transaction's id, or uuid.Nil for
	// non-transactional operations. Intents owned by this id are never
	// conflicts.
	requesterID() uuid.UUID
	// requesterPriority is the priority used by the fail policy.
	requesterPriority() uint64
	// resolutionTime is the hybrid time of this resolution attempt and the
	// floor of the returned safe time.
	resolutionTime() hlc.HybridTime
	// onCommittedData handles a key whose latest committed version is at the
	// given commit time: transactional requests fail when it exceeds their
	// read time, operations fold it into the safe time.
	onCommittedData(commit hlc.HybridTime) error
	// onCommittedTxn handles a conflicting transaction resolved as
	// committed: transactional requests fail, operations fold the commit
	// time into the safe time.
	onCommittedTxn(id uuid.UUID, commit hlc.HybridTime) error
	// safeTimeFloor returns the largest committed time folded so far.
	safeTimeFloor() hlc.HybridTime
}

// DocWrite is one write target of a transactional request.
type DocWrite struct {
	Path dockv.DocKey
}

// DocLock is one explicit row lock target of a transactional request.
type DocLock struct {
	Path     dockv.DocKey
	Strength dockv.RowLockStrength
}

// TransactionConflictRequest describes a transaction's write batch for
// conflict resolution.
type TransactionConflictRequest struct {
	Meta   dockv.TransactionMetadata
	Policy ConflictManagementPolicy
	Writes []DocWrite
	Locks  []DocLock
	// ResolutionTime is the hybrid time of this attempt.
	ResolutionTime hlc.HybridTime
	// ReadTime is the transaction's read time. Keys committed after it fail
	// the attempt. An invalid ReadTime disables the committed-data check
	// (serializable writes detect those conflicts through intents instead).
	ReadTime hlc.HybridTime
}

type transactionConflictContext struct {
	req  TransactionConflictRequest
	reqs []intentRequirement
	// maxCommitted tracks commit times at or below the read time, folded
	// into the safe time.
	maxCommitted hlc.HybridTime
}

func newTransactionConflictContext(req TransactionConflictRequest) (*transactionConflictContext, error) {
	if req.Meta.ID == uuid.Nil {
		return nil, errors.AssertionFailedf("transactional conflict resolution requires a transaction id")
	}
	if !req.Meta.Isolation.Valid() {
		return nil, errors.AssertionFailedf("invalid isolation level %d", req.Meta.Isolation)
	}
	set := newRequirementSet()
	writeTypes := dockv.WriteIntentTypes(req.Meta.Isolation)
	for _, w := range req.Writes {
		set.addTarget(w.Path, writeTypes)
	}
	for _, l := range req.Locks {
		set.addTarget(l.Path, dockv.LockIntentTypes(l.Strength))
	}
	return &transactionConflictContext{req: req, reqs: set.sorted()}, nil
}

func (c *transactionConflictContext) requirements() []intentRequirement { return c.reqs }
func (c *transactionConflictContext) requesterID() uuid.UUID            { return c.req.Meta.ID }
func (c *transactionConflictContext) requesterPriority() uint64         { return c.req.Meta.Priority }
func (c *transactionConflictContext) resolutionTime() hlc.HybridTime    { return c.req.ResolutionTime }

func (c *transactionConflictContext) onCommittedData(commit hlc.HybridTime) error {
	if !c.req.ReadTime.IsValid() {
		return nil
	}
	if c.req.ReadTime.Less(commit) {
		// Committed after our read time: the snapshot this transaction reads
		// at no longer reflects the key. No status lookup is needed.
		return NewCommittedConflictError(uuid.Nil, commit)
	}
	if c.maxCommitted.Less(commit) {
		c.maxCommitted = commit
	}
	return nil
}

func (c *transactionConflictContext) onCommittedTxn(id uuid.UUID, commit hlc.HybridTime) error {
	return NewCommittedConflictError(id, commit)
}

func (c *transactionConflictContext) safeTimeFloor() hlc.HybridTime { return c.maxCommitted }

// DocOperation is one key of a non-transactional operation, with the intent
// types it requires.
type DocOperation struct {
	Path  dockv.DocKey
	Types dockv.IntentTypeSet
}

// OperationConflictRequest describes a non-transactional operation (for
// example a single-shot write) for conflict resolution. Such operations
// resolve with the maximum priority, so under the fail policy they may abort
// any pending conflictor; committed conflicts advance their safe time rather
// than failing them.
type OperationConflictRequest struct {
	Policy         ConflictManagementPolicy
	Ops            []DocOperation
	ResolutionTime hlc.HybridTime
}

type operationConflictContext struct {
	req          OperationConflictRequest
	reqs         []intentRequirement
	maxCommitted hlc.HybridTime
}

func newOperationConflictContext(req OperationConflictRequest) (*operationConflictContext, error) {
	set := newRequirementSet()
	for _, op := range req.Ops {
		if op.Types.Empty() {
			return nil, errors.AssertionFailedf("operation on %v has an empty intent type set", op.Path)
		}
		set.addTarget(op.Path, op.Types)
	}
	return &operationConflictContext{req: req, reqs: set.sorted()}, nil
}

func (c *operationConflictContext) requirements() []intentRequirement { return c.reqs }
func (c *operationConflictContext) requesterID() uuid.UUID            { return uuid.Nil }
func (c *operationConflictContext) requesterPriority() uint64         { return math.MaxUint64 }
func (c *operationConflictContext) resolutionTime() hlc.HybridTime    { return c.req.ResolutionTime }

func (c *operationConflictContext) onCommittedData(commit hlc.HybridTime) error {
	if c.maxCommitted.Less(commit) {
		c.maxCommitted = commit
	}
	return nil
}

func (c *operationConflictContext) onCommittedTxn(_ uuid.UUID, commit hlc.HybridTime) error {
	if c.maxCommitted.Less(commit) {
		c.maxCommitted = commit
	}
	return nil
}

func (c *operationConflictContext) safeTimeFloor() hlc.HybridTime { return c.maxCommitted }
