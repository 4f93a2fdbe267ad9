// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package dockv

import (
	"encoding/binary"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// TransactionMetadata is the per-transaction record written to the intents
// store alongside a transaction's first provisional batch. Conflict
// resolution reads it to learn the priorities and isolation levels of
// conflicting transactions without a status-service round trip.
type TransactionMetadata struct {
	ID        uuid.UUID
	Priority  uint64
	Isolation IsolationLevel
	StartTime hlc.HybridTime
}

// Transaction metadata records live in the intents store under a reserved
// 0x00-prefixed keyspace. Intent keys always begin with an encoded path
// component (never a lone 0x00 followed by 'T'), so the namespaces are
// disjoint.
var txnMetadataPrefix = []byte{0x00, 'T'}

// TransactionMetadataKey returns the intents store key of the metadata
// record for the given transaction.
func TransactionMetadataKey(id uuid.UUID) []byte {
	k := make([]byte, 0, len(txnMetadataPrefix)+16)
	k = append(k, txnMetadataPrefix...)
	return append(k, id[:]...)
}

// IsTransactionMetadataKey reports whether key addresses a transaction
// metadata record. Intent scans over path-derived bounds never observe such
// keys; this is used by full-store sweeps.
func IsTransactionMetadataKey(key []byte) bool {
	return len(key) == len(txnMetadataPrefix)+16 &&
		key[0] == txnMetadataPrefix[0] && key[1] == txnMetadataPrefix[1]
}

const txnMetadataValueLen = 8 + 1 + 8

// EncodeTransactionMetadata encodes the metadata record's value.
func EncodeTransactionMetadata(m TransactionMetadata) []byte {
	v := make([]byte, txnMetadataValueLen)
	binary.BigEndian.PutUint64(v[:8], m.Priority)
	v[8] = byte(m.Isolation)
	binary.BigEndian.PutUint64(v[9:], uint64(m.StartTime))
	return v
}

// ParseTransactionMetadata decodes a metadata record given its key's
// transaction ID and the record value.
func ParseTransactionMetadata(id uuid.UUID, value []byte) (TransactionMetadata, error) {
	if len(value) != txnMetadataValueLen {
		return TransactionMetadata{}, errors.Errorf(
			"malformed transaction metadata: expected %d bytes, got %d", txnMetadataValueLen, len(value))
	}
	iso := IsolationLevel(value[8])
	if !iso.Valid() {
		return TransactionMetadata{}, errors.Errorf(
			"malformed transaction metadata: invalid isolation level %d", value[8])
	}
	return TransactionMetadata{
		ID:        id,
		Priority:  binary.BigEndian.Uint64(value[:8]),
		Isolation: iso,
		StartTime: hlc.HybridTime(binary.BigEndian.Uint64(value[9:])),
	}, nil
}
