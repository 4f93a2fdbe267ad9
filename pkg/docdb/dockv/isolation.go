// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package dockv

import "github.com/cockroachdb/redact"

// IsolationLevel is the isolation level a transaction runs at. It determines
// the intent types its writes take.
type IsolationLevel uint8

const (
	// Serializable provides serializable isolation. Writes take both a
	// strong read and a strong write intent so that concurrent writers
	// conflict even when they do not read each other's keys.
	Serializable IsolationLevel = iota
	// Snapshot provides snapshot isolation. Writes take only a strong write
	// intent; read-write conflicts are resolved through the read time.
	Snapshot
	// ReadCommitted provides read committed isolation. Intent requirements
	// match Snapshot; conflicts are retried per statement by the caller.
	ReadCommitted

	numIsolationLevels
)

// Valid reports whether l is a known isolation level.
func (l IsolationLevel) Valid() bool { return l < numIsolationLevels }

// String implements fmt.Stringer.
func (l IsolationLevel) String() string {
	switch l {
	case Serializable:
		return "serializable"
	case Snapshot:
		return "snapshot"
	case ReadCommitted:
		return "read committed"
	default:
		return "unknown"
	}
}

// SafeValue implements redact.SafeValue.
func (l IsolationLevel) SafeValue() {}

var _ redact.SafeValue = IsolationLevel(0)

// WriteIntentTypes returns the intent type set a write takes on its full
// target path under the given isolation level.
func WriteIntentTypes(l IsolationLevel) IntentTypeSet {
	if l == Serializable {
		return MakeIntentTypeSet(StrongRead, StrongWrite)
	}
	return MakeIntentTypeSet(StrongWrite)
}

// RowLockStrength is the strength of an explicit row lock, derived from the
// statement's row-mark clause.
type RowLockStrength uint8

const (
	// LockExclusive corresponds to FOR UPDATE.
	LockExclusive RowLockStrength = iota
	// LockNoKeyExclusive corresponds to FOR NO KEY UPDATE.
	LockNoKeyExclusive
	// LockShare corresponds to FOR SHARE.
	LockShare
	// LockKeyShare corresponds to FOR KEY SHARE.
	LockKeyShare
)

// String implements fmt.Stringer.
func (s RowLockStrength) String() string {
	switch s {
	case LockExclusive:
		return "exclusive"
	case LockNoKeyExclusive:
		return "no key exclusive"
	case LockShare:
		return "share"
	case LockKeyShare:
		return "key share"
	default:
		return "unknown"
	}
}

// SafeValue implements redact.SafeValue.
func (s RowLockStrength) SafeValue() {}

var _ redact.SafeValue = RowLockStrength(0)

// LockIntentTypes returns the intent type set an explicit row lock takes on
// its full target path.
func LockIntentTypes(s RowLockStrength) IntentTypeSet {
	switch s {
	case LockExclusive:
		return MakeIntentTypeSet(StrongRead, StrongWrite)
	case LockNoKeyExclusive:
		return MakeIntentTypeSet(StrongRead, WeakWrite)
	case LockShare:
		return MakeIntentTypeSet(StrongRead)
	case LockKeyShare:
		return MakeIntentTypeSet(WeakRead)
	default:
		return 0
	}
}
