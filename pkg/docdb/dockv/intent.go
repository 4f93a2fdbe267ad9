// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package dockv

import (
	"encoding/binary"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/google/uuid"
)

// IntentType classifies an intent by strength and operation. The bit layout
// is load-bearing: bit 0 is the write bit and bit 1 is the strength bit, so
// strength and operation checks are single mask operations and the weak
// counterpart of a strong type is type&^strongBit.
type IntentType uint8

const (
	// WeakRead is taken on the ancestors of a read target.
	WeakRead IntentType = 0b00
	// WeakWrite is taken on the ancestors of a write target.
	WeakWrite IntentType = 0b01
	// StrongRead is taken on the full path of a read target.
	StrongRead IntentType = 0b10
	// StrongWrite is taken on the full path of a write target.
	StrongWrite IntentType = 0b11

	numIntentTypes = 4

	writeBit  IntentType = 0b01
	strongBit IntentType = 0b10
)

// IsStrong reports whether t applies to the full target path rather than an
// ancestor prefix.
func (t IntentType) IsStrong() bool { return t&strongBit != 0 }

// IsWrite reports whether t locks the target for modification.
func (t IntentType) IsWrite() bool { return t&writeBit != 0 }

// String implements fmt.Stringer.
func (t IntentType) String() string {
	switch t {
	case WeakRead:
		return "weak read"
	case WeakWrite:
		return "weak write"
	case StrongRead:
		return "strong read"
	case StrongWrite:
		return "strong write"
	default:
		return "unknown"
	}
}

// SafeValue implements redact.SafeValue.
func (t IntentType) SafeValue() {}

var _ redact.SafeValue = IntentType(0)

// IntentTypeSet is a bitset of IntentTypes. Bit i corresponds to
// IntentType(i). The zero set is empty; valid non-empty encodings fit in the
// low numIntentTypes bits.
type IntentTypeSet uint8

// MakeIntentTypeSet constructs a set from the listed types.
func MakeIntentTypeSet(types ...IntentType) IntentTypeSet {
	var s IntentTypeSet
	for _, t := range types {
		s |= 1 << t
	}
	return s
}

// Contains reports whether t is in the set.
func (s IntentTypeSet) Contains(t IntentType) bool {
	return s&(1<<t) != 0
}

// Empty reports whether the set holds no types.
func (s IntentTypeSet) Empty() bool { return s == 0 }

// Union returns the union of two sets.
func (s IntentTypeSet) Union(o IntentTypeSet) IntentTypeSet { return s | o }

// MakeWeak maps every type in the set to its weak counterpart. This is the
// set taken on ancestor prefixes of a target path.
func (s IntentTypeSet) MakeWeak() IntentTypeSet {
	var out IntentTypeSet
	for t := IntentType(0); t < numIntentTypes; t++ {
		if s.Contains(t) {
			out |= 1 << (t &^ strongBit)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (s IntentTypeSet) String() string {
	if s.Empty() {
		return "{}"
	}
	out := "{"
	first := true
	for t := IntentType(0); t < numIntentTypes; t++ {
		if s.Contains(t) {
			if !first {
				out += ", "
			}
			out += t.String()
			first = false
		}
	}
	return out + "}"
}

// SafeValue implements redact.SafeValue.
func (s IntentTypeSet) SafeValue() {}

var _ redact.SafeValue = IntentTypeSet(0)

// intentTypesConflict is the per-type compatibility rule: two intent types
// conflict iff at least one of them is strong and at least one of them is a
// write. Symmetric by construction.
func intentTypesConflict(a, b IntentType) bool {
	return (a.IsStrong() || b.IsStrong()) && (a.IsWrite() || b.IsWrite())
}

// IntentTypeSetsConflict reports whether any type held in a conflicts with
// any type requested in b.
func IntentTypeSetsConflict(a, b IntentTypeSet) bool {
	for i := IntentType(0); i < numIntentTypes; i++ {
		if !a.Contains(i) {
			continue
		}
		for j := IntentType(0); j < numIntentTypes; j++ {
			if b.Contains(j) && intentTypesConflict(i, j) {
				return true
			}
		}
	}
	return false
}

// Intent store key layout:
//
//	encoded doc path · {0x00, 0x00} · intent type set byte · encoded DocHybridTime
//
// The {0x00, 0x00} marker cannot begin an encoded path component (those begin
// with the component's first escaped byte, and an escape pair is never
// {0x00, 0x00}), so the intents of a path sort between the path itself and
// the subtrees of its children, and parsing from the fixed-size suffix is
// unambiguous.
var intentKeyMarker = []byte{0x00, 0x00}

const intentKeySuffixLen = 2 + 1 + EncodedDocHybridTimeLen

// EncodeIntentKey encodes an intent store key.
func EncodeIntentKey(path DocKey, types IntentTypeSet, t DocHybridTime) []byte {
	k := make([]byte, 0, len(path)+intentKeySuffixLen)
	k = append(k, path...)
	k = append(k, intentKeyMarker...)
	k = append(k, byte(types))
	return t.AppendEncoded(k)
}

// IntentScanBounds returns the [lower, upper) bounds covering exactly the
// intents written against the given path, excluding child subtrees.
func IntentScanBounds(path DocKey) (lower, upper []byte) {
	lower = make([]byte, 0, len(path)+2)
	lower = append(lower, path...)
	lower = append(lower, 0x00, 0x00)
	upper = make([]byte, 0, len(path)+2)
	upper = append(upper, path...)
	upper = append(upper, 0x00, 0x01)
	return lower, upper
}

// ParsedIntentKey is the decoded form of an intent store key.
type ParsedIntentKey struct {
	Path  DocKey
	Types IntentTypeSet
	Time  DocHybridTime
}

// ParseIntentKey decodes an intent store key. Malformed keys are decode
// errors: the caller must fail the scan rather than skip the record, since a
// skipped record is a silently missed conflict.
func ParseIntentKey(key []byte) (ParsedIntentKey, error) {
	if len(key) < intentKeySuffixLen {
		return ParsedIntentKey{}, errors.Errorf("malformed intent key: too short (%d bytes)", len(key))
	}
	pathEnd := len(key) - intentKeySuffixLen
	if key[pathEnd] != 0x00 || key[pathEnd+1] != 0x00 {
		return ParsedIntentKey{}, errors.Errorf("malformed intent key: missing marker in %q", key)
	}
	types := IntentTypeSet(key[pathEnd+2])
	if types.Empty() || types >= 1<<numIntentTypes {
		return ParsedIntentKey{}, errors.Errorf("malformed intent key: invalid intent type set %#x", byte(types))
	}
	t, err := DecodeDocHybridTime(key[pathEnd+3:])
	if err != nil {
		return ParsedIntentKey{}, errors.Wrap(err, "malformed intent key")
	}
	return ParsedIntentKey{
		Path:  DocKey(key[:pathEnd]),
		Types: types,
		Time:  t,
	}, nil
}

// ParsedIntentValue is the decoded form of an intent store value: the owning
// transaction, the subtransaction that wrote it, and the provisional payload.
type ParsedIntentValue struct {
	TxnID    uuid.UUID
	SubtxnID uint32
	Payload  []byte
}

// EncodeIntentValue encodes an intent store value.
func EncodeIntentValue(txnID uuid.UUID, subtxnID uint32, payload []byte) []byte {
	v := make([]byte, 0, 16+binary.MaxVarintLen32+len(payload))
	v = append(v, txnID[:]...)
	v = binary.AppendUvarint(v, uint64(subtxnID))
	return append(v, payload...)
}

// ParseIntentValue decodes an intent store value.
func ParseIntentValue(value []byte) (ParsedIntentValue, error) {
	if len(value) < 16 {
		return ParsedIntentValue{}, errors.Errorf("malformed intent value: too short (%d bytes)", len(value))
	}
	var id uuid.UUID
	copy(id[:], value[:16])
	subtxn, n := binary.Uvarint(value[16:])
	if n <= 0 || subtxn > 1<<32-1 {
		return ParsedIntentValue{}, errors.New("malformed intent value: invalid subtransaction id")
	}
	return ParsedIntentValue{
		TxnID:    id,
		SubtxnID: uint32(subtxn),
		Payload:  value[16+n:],
	}, nil
}

// Committed store key layout:
//
//	encoded doc path · {0x00, 0x00} · encoded DocHybridTime
//
// Version chains sort newest first, so the first entry of a bounded scan is
// the latest committed version of the path.

// EncodeCommittedKey encodes a committed store key for a version of path
// committed at the given time.
func EncodeCommittedKey(path DocKey, commit hlc.HybridTime) []byte {
	k := make([]byte, 0, len(path)+2+EncodedDocHybridTimeLen)
	k = append(k, path...)
	k = append(k, 0x00, 0x00)
	return DocHybridTime{Time: commit}.AppendEncoded(k)
}

// ParseCommittedKey decodes a committed store key.
func ParseCommittedKey(key []byte) (DocKey, hlc.HybridTime, error) {
	const suffixLen = 2 + EncodedDocHybridTimeLen
	if len(key) < suffixLen {
		return nil, hlc.Invalid, errors.Errorf("malformed committed key: too short (%d bytes)", len(key))
	}
	pathEnd := len(key) - suffixLen
	if key[pathEnd] != 0x00 || key[pathEnd+1] != 0x00 {
		return nil, hlc.Invalid, errors.Errorf("malformed committed key: missing marker in %q", key)
	}
	t, err := DecodeDocHybridTime(key[pathEnd+2:])
	if err != nil {
		return nil, hlc.Invalid, errors.Wrap(err, "malformed committed key")
	}
	return DocKey(key[:pathEnd]), t.Time, nil
}
