// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"testing"

	"github.com/atolldb/atoll/pkg/docdb/dockv"
	"github.com/atolldb/atoll/pkg/storage"
	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestScanIntentsOnPathExcludesSubtree(t *testing.T) {
	intents := storage.NewInMem()
	defer func() { require.NoError(t, intents.Close()) }()

	parent := dockv.MakeDocKey([]byte("users"))
	child := dockv.MakeDocKey([]byte("users"), []byte("alice"))
	txnID := uuid.New()
	types := dockv.MakeIntentTypeSet(dockv.StrongWrite)
	value := dockv.EncodeIntentValue(txnID, 0, nil)

	for i, p := range []dockv.DocKey{parent, child} {
		dht := dockv.DocHybridTime{Time: hlc.FromMicros(int64(10 + i))}
		require.NoError(t, intents.Set(dockv.EncodeIntentKey(p, types, dht), value))
	}

	var got []dockv.DocKey
	require.NoError(t, NewIntentReader(intents).ScanIntentsOnPath(parent, func(in ParsedIntent) error {
		got = append(got, in.Path)
		return nil
	}))
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(parent))
}

func TestScanIntentsDecodesFields(t *testing.T) {
	intents := storage.NewInMem()
	defer func() { require.NoError(t, intents.Close()) }()

	path := dockv.MakeDocKey([]byte("users"), []byte("alice"))
	txnID := uuid.New()
	types := dockv.MakeIntentTypeSet(dockv.StrongRead, dockv.StrongWrite)
	dht := dockv.DocHybridTime{Time: hlc.New(77, 3), WriteID: 9}
	require.NoError(t, intents.Set(
		dockv.EncodeIntentKey(path, types, dht),
		dockv.EncodeIntentValue(txnID, 4, []byte("payload"))))

	got := collectIntents(t, intents, path)
	require.Len(t, got, 1)
	require.True(t, got[0].Path.Equal(path))
	require.Equal(t, types, got[0].Types)
	require.Equal(t, dht, got[0].Time)
	require.Equal(t, txnID, got[0].TxnID)
	require.Equal(t, uint32(4), got[0].SubtxnID)
}

func TestScanIntentsFailsOnMalformedRecord(t *testing.T) {
	intents := storage.NewInMem()
	defer func() { require.NoError(t, intents.Close()) }()

	path := dockv.MakeDocKey([]byte("users"))
	dht := dockv.DocHybridTime{Time: hlc.FromMicros(10)}
	// Truncated value: shorter than a transaction id.
	require.NoError(t, intents.Set(
		dockv.EncodeIntentKey(path, dockv.MakeIntentTypeSet(dockv.StrongWrite), dht),
		[]byte("short")))

	err := NewIntentReader(intents).ScanIntentsOnPath(path, func(ParsedIntent) error {
		t.Error("malformed record must not be visited")
		return nil
	})
	require.True(t, IsDecodeError(err), "got %v", err)
}

func TestReadLatestCommittedNewestFirst(t *testing.T) {
	regular := storage.NewInMem()
	defer func() { require.NoError(t, regular.Close()) }()

	path := dockv.MakeDocKey([]byte("users"), []byte("alice"))
	for _, micros := range []int64{10, 30, 20} {
		require.NoError(t, regular.Set(
			dockv.EncodeCommittedKey(path, hlc.FromMicros(micros)), []byte("v")))
	}

	ct, found, err := readLatestCommitted(regular, path)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, hlc.FromMicros(30), ct)

	// An empty chain reports not found.
	otherPath := dockv.MakeDocKey([]byte("users"), []byte("bob"))
	_, found, err = readLatestCommitted(regular, otherPath)
	require.NoError(t, err)
	require.False(t, found)
}

func TestReadCommittedValueVisibility(t *testing.T) {
	regular := storage.NewInMem()
	defer func() { require.NoError(t, regular.Close()) }()

	path := dockv.MakeDocKey([]byte("users"), []byte("alice"))
	require.NoError(t, regular.Set(dockv.EncodeCommittedKey(path, hlc.FromMicros(10)), []byte("old")))
	require.NoError(t, regular.Set(dockv.EncodeCommittedKey(path, hlc.FromMicros(30)), []byte("new")))

	// A read between the versions sees the older one.
	value, ct, found, err := ReadCommittedValue(regular, path, hlc.FromMicros(20))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, hlc.FromMicros(10), ct)
	require.Equal(t, []byte("old"), value)

	// A read at the newer version's exact commit time sees it.
	value, ct, found, err = ReadCommittedValue(regular, path, hlc.FromMicros(30))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, hlc.FromMicros(30), ct)
	require.Equal(t, []byte("new"), value)

	// A read below every version sees nothing.
	_, _, found, err = ReadCommittedValue(regular, path, hlc.FromMicros(5))
	require.NoError(t, err)
	require.False(t, found)
}
