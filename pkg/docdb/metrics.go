// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package docdb

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the conflict resolution counters. They are injected rather
// than registered globally so that multiple stores in one process keep
// separate counts.
type Metrics struct {
	ConflictsDetected   prometheus.Counter
	AbortsRequested     prometheus.Counter
	SkipSignals         prometheus.Counter
	WaitSuspensions     prometheus.Counter
	ResolutionSuccesses prometheus.Counter
	ResolutionFailures  prometheus.Counter
}

// NewMetrics constructs the counters and registers them with reg, if
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_conflicts_total",
			Help: "Conflicting transactions detected during conflict resolution.",
		}),
		AbortsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_aborts_requested_total",
			Help: "Abort requests issued to the status service by the fail policy.",
		}),
		SkipSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_skip_signals_total",
			Help: "Skip-locking signals returned by the skip policy.",
		}),
		WaitSuspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_wait_suspensions_total",
			Help: "Times a resolution attempt suspended on the wait queue.",
		}),
		ResolutionSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_successes_total",
			Help: "Resolution attempts that completed successfully.",
		}),
		ResolutionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docdb_conflict_resolution_failures_total",
			Help: "Resolution attempts that failed, including skip signals.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ConflictsDetected, m.AbortsRequested, m.SkipSignals,
			m.WaitSuspensions, m.ResolutionSuccesses, m.ResolutionFailures,
		)
	}
	return m
}
