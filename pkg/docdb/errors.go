// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"fmt"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrSkipLocking is the skip-locking signal of the skip policy: not a
// failure, but a distinct result variant meaning the caller should skip this
// row and continue.
var ErrSkipLocking = errors.New("conflicting transaction found, skipping locked row")

// IsSkipLocking reports whether err is the skip-locking signal.
func IsSkipLocking(err error) bool {
	return errors.Is(err, ErrSkipLocking)
}

// ConflictError is the serialization failure raised when an operation cannot
// proceed because of a committed or higher-priority pending conflict. The
// caller may retry the whole operation, typically with a boosted priority.
type ConflictError struct {
	// TxnID identifies the conflicting transaction, for diagnostics.
	TxnID uuid.UUID
	// CommitTime is the conflictor's commit time for committed-data
	// conflicts, and invalid for priority conflicts with pending
	// transactions.
	CommitTime hlc.HybridTime
}

// Error implements error.
func (e *ConflictError) Error() string {
	if e.CommitTime.IsValid() {
		return fmt.Sprintf("conflict with committed transaction %s (commit time %s)", e.TxnID, e.CommitTime)
	}
	return fmt.Sprintf("conflict with higher priority transaction %s", e.TxnID)
}

// NewCommittedConflictError returns a ConflictError for a conflict with data
// committed at the given time.
func NewCommittedConflictError(id uuid.UUID, commitTime hlc.HybridTime) error {
	return &ConflictError{TxnID: id, CommitTime: commitTime}
}

// NewPriorityConflictError returns a ConflictError for a conflict with a
// pending transaction the requester may not abort.
func NewPriorityConflictError(id uuid.UUID) error {
	return &ConflictError{TxnID: id}
}

// IsConflictError reports whether err carries a ConflictError.
func IsConflictError(err error) bool {
	return errors.HasType(err, (*ConflictError)(nil))
}

var errDecodeMark = errors.New("decode error")

// NewDecodeError marks err as a decode error: a malformed intent or status
// record, fatal to the current attempt and never retried internally.
func NewDecodeError(err error) error {
	return errors.Mark(err, errDecodeMark)
}

// IsDecodeError reports whether err is marked as a decode error.
func IsDecodeError(err error) bool {
	return errors.Is(err, errDecodeMark)
}

var errStatusUnavailableMark = errors.New("transaction status service unavailable")

// MarkStatusUnavailable marks err as a transient status service failure. The
// caller decides whether to retry the whole resolution.
func MarkStatusUnavailable(err error) error {
	return errors.Mark(err, errStatusUnavailableMark)
}

// IsStatusUnavailable reports whether err is a transient status service
// failure.
func IsStatusUnavailable(err error) bool {
	return errors.Is(err, errStatusUnavailableMark)
}

var errCancelledMark = errors.New("conflict resolution cancelled")

// markCancelled marks err as a cancellation while suspended. Locks and
// wait-queue registrations are cleaned up before this error is delivered.
func markCancelled(err error) error {
	return errors.Mark(err, errCancelledMark)
}

// IsResolutionCancelled reports whether err is a cancellation error.
func IsResolutionCancelled(err error) bool {
	return errors.Is(err, errCancelledMark)
}
