package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	planCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractlens_query_plans_total",
			Help: "Query plans chosen, by plan kind.",
		},
		[]string{"kind"},
	)

	degradedPlans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractlens_degraded_plans_total",
			Help: "Rollup plans that fell back to a fact scan because buckets were missing.",
		},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractlens_query_duration_seconds",
			Help:    "Query latency by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// ExportRows counts CSV rows written by the export streamer.
	ExportRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractlens_export_rows_total",
			Help: "Rows emitted by exports.",
		},
	)

	// SnapshotReloads counts snapshot reload attempts by outcome
	// (swapped, unchanged, error).
	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractlens_snapshot_reloads_total",
			Help: "Snapshot reload attempts by outcome.",
		},
		[]string{"outcome"},
	)
)
