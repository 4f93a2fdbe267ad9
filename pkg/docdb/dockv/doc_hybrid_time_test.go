// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package dockv

import (
	"bytes"
	"testing"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/stretchr/testify/require"
)

func TestDocHybridTimeRoundTrip(t *testing.T) {
	in := DocHybridTime{Time: hlc.New(987654, 3), WriteID: 12}
	enc := in.AppendEncoded(nil)
	require.Len(t, enc, EncodedDocHybridTimeLen)
	out, err := DecodeDocHybridTime(enc)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDocHybridTimeDescendingOrder(t *testing.T) {
	older := DocHybridTime{Time: hlc.FromMicros(100)}.AppendEncoded(nil)
	newer := DocHybridTime{Time: hlc.FromMicros(200)}.AppendEncoded(nil)
	// Newer times sort first.
	require.Negative(t, bytes.Compare(newer, older))

	// Within one time, higher write ids sort first.
	w1 := DocHybridTime{Time: hlc.FromMicros(100), WriteID: 1}.AppendEncoded(nil)
	w2 := DocHybridTime{Time: hlc.FromMicros(100), WriteID: 2}.AppendEncoded(nil)
	require.Negative(t, bytes.Compare(w2, w1))
}

func TestDocHybridTimeDecodeErrors(t *testing.T) {
	_, err := DecodeDocHybridTime([]byte{1, 2, 3})
	require.Error(t, err)

	// An all-ones encoding decodes to the invalid hybrid time.
	invalid := DocHybridTime{Time: hlc.Invalid}.AppendEncoded(nil)
	_, err = DecodeDocHybridTime(invalid)
	require.Error(t, err)
}
