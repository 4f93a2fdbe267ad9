// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"context"

	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/google/uuid"
)

// resolveStatuses returns a status snapshot for every distinct id, issuing
// at most one batched request to the status service. The optional cache
// short-circuits ids known to be finalized. Transactions the service no
// longer knows are implicitly aborted. A transport failure fails the whole
// lookup as a retryable unit; it is never turned into a per-id abort
// decision.
func resolveStatuses(
	ctx context.Context,
	status TransactionStatusManager,
	cache *TxnStatusCache,
	ids []uuid.UUID,
	at hlc.HybridTime,
) (map[uuid.UUID]TransactionStatus, error) {
	out := make(map[uuid.UUID]TransactionStatus, len(ids))
	var fetch []uuid.UUID
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue // coalesce duplicates
		}
		if cache != nil {
			if s, ok := cache.get(id); ok {
				out[id] = s
				continue
			}
		}
		out[id] = TransactionStatus{} // placeholder, overwritten below
		fetch = append(fetch, id)
	}
	if len(fetch) == 0 {
		return out, nil
	}

	fetched, err := status.BatchGetStatus(ctx, fetch, at)
	if err != nil {
		return nil, MarkStatusUnavailable(err)
	}
	for _, id := range fetch {
		s, ok := fetched[id]
		if !ok {
			// The transaction record has expired or been cleaned up.
			s = TransactionStatus{State: TxnAborted}
		}
		out[id] = s
		if cache != nil {
			cache.add(id, s)
		}
	}
	return out, nil
}
