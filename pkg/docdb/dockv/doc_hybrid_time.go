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
)

// DocHybridTime extends a HybridTime with a write id that orders writes to
// the same key within a single provisional batch.
type DocHybridTime struct {
	Time    hlc.HybridTime
	WriteID uint32
}

// EncodedDocHybridTimeLen is the length of an encoded DocHybridTime.
const EncodedDocHybridTimeLen = 12

// AppendEncoded appends the descending encoding of t to b. Both fields are
// bit-inverted so that newer times sort lexicographically first, which lets
// scans observe the newest version of a key without seeking to the end of
// its version chain.
func (t DocHybridTime) AppendEncoded(b []byte) []byte {
	var enc [EncodedDocHybridTimeLen]byte
	binary.BigEndian.PutUint64(enc[:8], ^uint64(t.Time))
	binary.BigEndian.PutUint32(enc[8:], ^t.WriteID)
	return append(b, enc[:]...)
}

// DecodeDocHybridTime decodes a DocHybridTime from the descending encoding.
func DecodeDocHybridTime(b []byte) (DocHybridTime, error) {
	if len(b) != EncodedDocHybridTimeLen {
		return DocHybridTime{}, errors.Errorf(
			"malformed doc hybrid time: expected %d bytes, got %d", EncodedDocHybridTimeLen, len(b))
	}
	t := DocHybridTime{
		Time:    hlc.HybridTime(^binary.BigEndian.Uint64(b[:8])),
		WriteID: ^binary.BigEndian.Uint32(b[8:]),
	}
	if !t.Time.IsValid() {
		return DocHybridTime{}, errors.New("malformed doc hybrid time: invalid hybrid time")
	}
	return t, nil
}

// String renders the time for diagnostics.
func (t DocHybridTime) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements redact.SafeFormatter.
func (t DocHybridTime) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%v/w%d", t.Time, t.WriteID)
}
