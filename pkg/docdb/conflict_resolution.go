// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import (
	"context"
	"sort"

	"github.com/atolldb/atoll/pkg/docdb/dockv"
	"github.com/atolldb/atoll/pkg/util/hlc"
	"github.com/atolldb/atoll/pkg/util/stop"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResolveTransactionConflicts resolves the conflicts of a transaction's
// write batch. The result is delivered asynchronously through exactly one
// invocation of cb; a non-nil return value is a synchronous configuration
// error and means cb will never be invoked.
//
// On success, cb receives the safe hybrid time: the maximum of the
// resolution time and every observed committed conflict time, which the
// caller may advance its local clock to before writing.
func ResolveTransactionConflicts(
	ctx context.Context, req TransactionConflictRequest, deps ResolverDeps, cb ResolutionCallback,
) error {
	rctx, err := newTransactionConflictContext(req)
	if err != nil {
		return err
	}
	ctx = logtags.AddTag(ctx, "txn", req.Meta.ID.String())
	return startResolution(ctx, req.Policy, rctx, deps, cb)
}

// ResolveOperationConflicts resolves the conflicts of a non-transactional
// operation. See ResolveTransactionConflicts for the delivery contract.
func ResolveOperationConflicts(
	ctx context.Context, req OperationConflictRequest, deps ResolverDeps, cb ResolutionCallback,
) error {
	rctx, err := newOperationConflictContext(req)
	if err != nil {
		return err
	}
	ctx = logtags.AddTag(ctx, "op", "conflict-resolution")
	return startResolution(ctx, req.Policy, rctx, deps, cb)
}

// startResolution validates configuration synchronously, then hands the
// attempt to a stopper task. Configuration errors are returned directly and
// never reach the callback.
func startResolution(
	ctx context.Context,
	policy ConflictManagementPolicy,
	rctx conflictResolverContext,
	deps ResolverDeps,
	cb ResolutionCallback,
) error {
	deps.initDefaults()
	if cb == nil {
		return errors.AssertionFailedf("conflict resolution requires a result callback")
	}
	if deps.Stopper == nil {
		return errors.AssertionFailedf("conflict resolution requires a stopper")
	}
	if deps.DB.Regular == nil || deps.DB.Intents == nil {
		return errors.AssertionFailedf("conflict resolution requires both document stores")
	}
	if deps.Status == nil {
		return errors.AssertionFailedf("conflict resolution requires a transaction status manager")
	}
	if policy == WaitOnConflict && deps.WaitQueue == nil {
		return errors.Newf("%v policy requires a wait queue", policy)
	}
	if !rctx.resolutionTime().IsValid() {
		return errors.AssertionFailedf("conflict resolution requires a valid resolution time")
	}

	r := &resolver{policy: policy, rctx: rctx, deps: deps, cb: cb}
	return deps.Stopper.RunAsyncTask(ctx, "conflict-resolution", r.run)
}

// resolver drives one resolution attempt: build the conflict set, resolve
// conflictor statuses, apply the policy, and possibly suspend and restart.
type resolver struct {
	policy ConflictManagementPolicy
	rctx   conflictResolverContext
	deps   ResolverDeps
	cb     ResolutionCallback

	// waiterID identifies this operation on the wait queue: the requesting
	// transaction's id, or a fresh id for non-transactional operations.
	waiterID uuid.UUID
}

func (r *resolver) run(ctx context.Context) {
	safe, err := r.resolve(ctx)
	r.finish(ctx, safe, err)
}

// finish restores the lock batch invariant, records metrics and delivers
// the result. After this returns the lock batch is fully held (success) or
// fully released (failure), never in between.
func (r *resolver) finish(ctx context.Context, safe hlc.HybridTime, err error) {
	if lb := r.deps.LockBatch; lb != nil && err != nil {
		lb.Unlock()
	}
	if err != nil {
		r.deps.Metrics.ResolutionFailures.Inc()
		r.deps.Log.Debug("conflict resolution failed",
			zap.Stringer("tags", logtags.FromContext(ctx)),
			zap.Stringer("policy", r.policy),
			zap.Error(err))
	} else {
		r.deps.Metrics.ResolutionSuccesses.Inc()
		r.deps.Log.Debug("conflict resolution succeeded",
			zap.Stringer("tags", logtags.FromContext(ctx)),
			zap.Stringer("policy", r.policy),
			zap.Stringer("safe-time", safe))
	}
	r.cb(safe, err)
}

func (r *resolver) resolve(ctx context.Context) (hlc.HybridTime, error) {
	r.waiterID = r.rctx.requesterID()
	if r.waiterID == uuid.Nil {
		r.waiterID = uuid.New()
	}

	// The wait policy loops: every resumption re-derives the conflict set
	// from scratch, since the world may have changed while suspended. The
	// other policies terminate on the first pass.
	for {
		if err := ctx.Err(); err != nil {
			return hlc.Invalid, markCancelled(err)
		}

		conflicts, err := r.buildConflictSet(ctx)
		if err != nil {
			return hlc.Invalid, err
		}
		pending, err := r.resolveConflictStatuses(ctx, conflicts)
		if err != nil {
			return hlc.Invalid, err
		}
		if len(pending) == 0 {
			return r.safeTime(), nil
		}

		switch r.policy {
		case SkipOnConflict:
			r.deps.Metrics.SkipSignals.Inc()
			return hlc.Invalid, errors.Wrapf(ErrSkipLocking,
				"%d conflicting transaction(s)", len(pending))

		case FailOnConflict:
			if err := r.applyFailPolicy(ctx, pending); err != nil {
				return hlc.Invalid, err
			}
			return r.safeTime(), nil

		case WaitOnConflict:
			if err := r.waitFor(ctx, pending); err != nil {
				return hlc.Invalid, err
			}

		default:
			return hlc.Invalid, errors.AssertionFailedf("unknown policy %d", r.policy)
		}
	}
}

// safeTime is the success value: all committed conflicts observed during
// the attempt are folded in, so a caller advancing its read time past it
// reads above every one of them.
func (r *resolver) safeTime() hlc.HybridTime {
	safe := r.rctx.resolutionTime()
	if floor := r.rctx.safeTimeFloor(); safe.Less(floor) {
		safe = floor
	}
	return safe
}

// buildConflictSet scans the intents store for every requirement of the
// operation and collects the transactions whose held intents are
// incompatible with it. Committed-data conflicts are checked here too, on
// full targets that take a strong write.
func (r *resolver) buildConflictSet(ctx context.Context) (map[uuid.UUID]*conflictingTxn, error) {
	reader := NewIntentReader(r.deps.DB.Intents)
	self := r.rctx.requesterID()
	conflicts := make(map[uuid.UUID]*conflictingTxn)

	for _, req := range r.rctx.requirements() {
		if req.fullTarget && req.types.Contains(dockv.StrongWrite) {
			commit, found, err := readLatestCommitted(r.deps.DB.Regular, req.path)
			if err != nil {
				return nil, err
			}
			if found {
				if err := r.rctx.onCommittedData(commit); err != nil {
					return nil, err
				}
			}
		}

		reqTypes := req.types
		if err := reader.ScanIntentsOnPath(req.path, func(in ParsedIntent) error {
			if in.TxnID == self {
				// Re-entrant intents of the requesting transaction are never
				// conflicts.
				return nil
			}
			if !dockv.IntentTypeSetsConflict(in.Types, reqTypes) {
				return nil
			}
			c := conflicts[in.TxnID]
			if c == nil {
				c = &conflictingTxn{id: in.TxnID}
				conflicts[in.TxnID] = c
				r.deps.Metrics.ConflictsDetected.Inc()
			}
			c.addIntent(in.SubtxnID, in.Types)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for id, c := range conflicts {
		v, found, err := r.deps.DB.Intents.Get(dockv.TransactionMetadataKey(id))
		if err != nil {
			return nil, errors.Wrap(err, "reading transaction metadata")
		}
		if !found {
			// The metadata record is gone: the transaction was finalized and
			// cleaned up. Treated as aborted without a status lookup.
			continue
		}
		meta, err := dockv.ParseTransactionMetadata(id, v)
		if err != nil {
			return nil, NewDecodeError(err)
		}
		c.meta, c.metaFound = meta, true
	}
	return conflicts, nil
}

// resolveConflictStatuses fetches the status of every conflictor in one
// batched lookup and partitions the results: aborted conflictors (including
// rolled-back savepoints) are dropped, committed conflictors are handed to
// the per-kind context (except under the skip policy, where they remain
// skippable conflicts), and the pending remainder is returned in id order.
func (r *resolver) resolveConflictStatuses(
	ctx context.Context, conflicts map[uuid.UUID]*conflictingTxn,
) ([]*conflictingTxn, error) {
	ids := make([]uuid.UUID, 0, len(conflicts))
	for id, c := range conflicts {
		if c.metaFound {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool {
		return uuidLess(ids[i], ids[j])
	})

	statuses, err := resolveStatuses(ctx, r.deps.Status, r.deps.StatusCache, ids, r.rctx.resolutionTime())
	if err != nil {
		return nil, err
	}

	var pending []*conflictingTxn
	for _, id := range ids {
		c := conflicts[id]
		c.status = statuses[id]
		switch c.status.State {
		case TxnAborted:
			// No longer a conflict.
		case TxnCommitted:
			if r.policy == SkipOnConflict {
				// Under the skip policy a committed conflictor is still a
				// skippable conflict, the same as a pending one. Visibility of
				// the committed data itself is checked against the read time
				// in buildConflictSet, independent of policy.
				pending = append(pending, c)
				continue
			}
			if err := r.rctx.onCommittedTxn(id, c.status.CommitTime); err != nil {
				return nil, err
			}
		case TxnPending:
			if c.blockingTypes(c.status.AbortedSubtxns).Empty() {
				// Every blocking intent belongs to an aborted
				// subtransaction.
				continue
			}
			pending = append(pending, c)
		default:
			return nil, NewDecodeError(errors.AssertionFailedf(
				"invalid transaction state %d for %s", c.status.State, id))
		}
	}
	return pending, nil
}

// applyFailPolicy implements the fail policy: the requester proceeds only
// if its priority strictly exceeds every pending conflictor's, in which
// case each conflictor receives exactly one abort request. Otherwise the
// requester fails without issuing any aborts. Equal priorities fail the
// requester: keeping abort authority one-sided avoids double-abort races
// between symmetric writers.
func (r *resolver) applyFailPolicy(ctx context.Context, pending []*conflictingTxn) error {
	myPriority := r.rctx.requesterPriority()
	for _, c := range pending {
		if c.priority() >= myPriority {
			return NewPriorityConflictError(c.id)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]TransactionStatus, len(pending))
	for i, c := range pending {
		i, c := i, c
		r.deps.Metrics.AbortsRequested.Inc()
		g.Go(func() error {
			s, err := r.deps.Status.RequestAbort(gctx, c.id)
			if err != nil {
				return MarkStatusUnavailable(errors.Wrapf(err, "aborting %s", c.id))
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, c := range pending {
		if cache := r.deps.StatusCache; cache != nil {
			cache.add(c.id, results[i])
		}
		if results[i].State == TxnCommitted {
			// The conflictor committed before the abort landed.
			if err := r.rctx.onCommittedTxn(c.id, results[i].CommitTime); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitFor implements the wait policy's suspension: release the lock batch,
// register on the wait queue keyed by the pending conflictor ids, park
// until resumed, and re-acquire the batch. The caller then re-derives the
// conflict set; the one computed before suspension is never reused.
func (r *resolver) waitFor(ctx context.Context, pending []*conflictingTxn) error {
	blockers := make([]uuid.UUID, len(pending))
	for i, c := range pending {
		blockers[i] = c.id
	}

	// The batch must not be held across a suspension point: a suspended
	// operation holding key locks would block the very transactions it is
	// waiting on.
	if lb := r.deps.LockBatch; lb != nil {
		lb.Unlock()
	}

	resumeC := make(chan error, 1)
	if err := r.deps.WaitQueue.RegisterWaiter(ctx, r.waiterID, blockers, func(err error) {
		resumeC <- err
	}); err != nil {
		return err
	}

	// Close the registration race: a blocker that finalized between the
	// status lookup and the registration will never signal the queue again,
	// so re-check before parking.
	statuses, err := resolveStatuses(ctx, r.deps.Status, r.deps.StatusCache, blockers, r.rctx.resolutionTime())
	if err != nil {
		r.deps.WaitQueue.CancelWaiter(r.waiterID)
		return err
	}
	stillPending := false
	for _, id := range blockers {
		if statuses[id].State == TxnPending {
			stillPending = true
			break
		}
	}

	if stillPending {
		r.deps.Metrics.WaitSuspensions.Inc()
		r.deps.Log.Debug("suspending on wait queue",
			zap.Stringer("tags", logtags.FromContext(ctx)),
			zap.Stringer("waiter", r.waiterID),
			zap.Int("blockers", len(blockers)))
		select {
		case err := <-resumeC:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			r.deps.WaitQueue.CancelWaiter(r.waiterID)
			return markCancelled(ctx.Err())
		case <-r.deps.Stopper.ShouldQuiesce():
			r.deps.WaitQueue.CancelWaiter(r.waiterID)
			return markCancelled(stop.ErrUnavailable)
		}
	} else {
		r.deps.WaitQueue.CancelWaiter(r.waiterID)
	}

	if lb := r.deps.LockBatch; lb != nil {
		if err := lb.Lock(ctx); err != nil {
			return markCancelled(err)
		}
	}
	return nil
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
