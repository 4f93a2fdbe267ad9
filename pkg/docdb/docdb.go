// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package docdb implements the transaction conflict resolution engine of the
// document store: given a batch of writes or read locks belonging to one
// operation, it decides whether they may proceed in the face of other
// transactions' provisional intents and already-committed versions, under
// one of three conflict management policies (wait, skip, fail).
package docdb

import (
	"context"

	"github.com/atolldb/atoll/pkg/docdb/lockmanager"
	"github.com/atolldb/atoll/pkg/storage"
	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/atolldb/atoll/pkg/util/stop"
	"github.com/cockroachdb/redact"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocDB is the pair of store handles conflict resolution reads: committed
// document versions in Regular, provisional data (intents and transaction
// metadata) in Intents.
type DocDB struct {
	Regular storage.Reader
	Intents storage.Reader
}

// TxnState is the externally-tracked state of a transaction.
type TxnState int8

const (
	// TxnPending means the transaction has neither committed nor aborted.
	TxnPending TxnState = iota
	// TxnCommitted means the transaction committed.
	TxnCommitted
	// TxnAborted means the transaction aborted, or its record has expired.
	TxnAborted
)

// String implements fmt.Stringer.
func (s TxnState) String() string {
	switch s {
	case TxnPending:
		return "pending"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SafeValue implements redact.SafeValue.
func (s TxnState) SafeValue() {}

var _ redact.SafeValue = TxnState(0)

// IsFinalized reports whether the state is terminal.
func (s TxnState) IsFinalized() bool {
	return s == TxnCommitted || s == TxnAborted
}

// TransactionStatus is a snapshot of a transaction's state at a resolution
// time: the state, the commit time when committed, and the set of aborted
// subtransactions when pending (savepoint rollbacks).
type TransactionStatus struct {
	State          TxnState
	CommitTime     hlc.HybridTime
	AbortedSubtxns map[uint32]struct{}
}

// TransactionStatusManager is the external status tracking service. Both
// calls may fail with transient transport errors, which fail the resolution
// attempt as a unit.
type TransactionStatusManager interface {
	// BatchGetStatus returns the status of each listed transaction as of the
	// given resolution time. Transactions missing from the result map have
	// had their records cleaned up and are implicitly aborted.
	BatchGetStatus(ctx context.Context, ids []uuid.UUID, at hlc.HybridTime) (map[uuid.UUID]TransactionStatus, error)
	// RequestAbort asks the service to abort the transaction and returns its
	// resulting status. The transaction may already be finalized, in which
	// case the existing terminal status is returned.
	RequestAbort(ctx context.Context, id uuid.UUID) (TransactionStatus, error)
}

// WaitQueue is the wait-queue admission subsystem, consumed only under the
// wait policy.
type WaitQueue interface {
	RegisterWaiter(ctx context.Context, waiterID uuid.UUID, blockers []uuid.UUID, resume func(error)) error
	CancelWaiter(waiterID uuid.UUID)
}

// ConflictManagementPolicy selects how a resolution attempt reacts to
// conflicting pending transactions. It is chosen per operation by the
// caller, derived from isolation level and statement semantics.
type ConflictManagementPolicy int8

const (
	// WaitOnConflict suspends the operation until conflicting transactions
	// finalize, then retries resolution from scratch. Requires a wait queue.
	WaitOnConflict ConflictManagementPolicy = iota
	// SkipOnConflict reports a skip-locking signal on the first conflict, so
	// the caller can skip the row and continue.
	SkipOnConflict
	// FailOnConflict aborts lower-priority conflicting transactions or fails
	// the operation if any conflictor has equal or higher priority.
	FailOnConflict
)

// String implements fmt.Stringer.
func (p ConflictManagementPolicy) String() string {
	switch p {
	case WaitOnConflict:
		return "wait-on-conflict"
	case SkipOnConflict:
		return "skip-on-conflict"
	case FailOnConflict:
		return "fail-on-conflict"
	default:
		return "unknown"
	}
}

// SafeValue implements redact.SafeValue.
func (p ConflictManagementPolicy) SafeValue() {}

var _ redact.SafeValue = ConflictManagementPolicy(0)

// ResolutionCallback receives the result of an asynchronous resolution
// attempt, exactly once: on success, the safe hybrid time the caller may
// advance its read time to; on failure, a typed error from the taxonomy in
// errors.go.
type ResolutionCallback func(safeTime hlc.HybridTime, err error)

// ResolverDeps carries the collaborators of a resolution attempt. DB,
// Status and Stopper are required; WaitQueue is required under
// WaitOnConflict; the rest are optional.
type ResolverDeps struct {
	DB        DocDB
	Status    TransactionStatusManager
	WaitQueue WaitQueue
	// LockBatch is the externally-owned lock batch of the operation. The
	// engine releases and re-acquires it while waiting and guarantees it is
	// fully held on success and fully released on failure. May be nil when
	// the caller manages locking elsewhere.
	LockBatch *lockmanager.LockBatch
	Stopper   *stop.Stopper
	Log       *zap.Logger
	Metrics   *Metrics
	// StatusCache, when set, is consulted before the status service for
	// finalized transactions. Sharing one cache across attempts avoids
	// refetching statuses of recently finalized transactions.
	StatusCache *TxnStatusCache
}

func (d *ResolverDeps) initDefaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
}
