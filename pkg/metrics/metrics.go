// Package metrics provides Prometheus metrics for the ETL pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "etl"

var (
	// CyclesTotal counts completed poll cycles by outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cycles_total",
			Help:      "Total number of pipeline cycles by status",
		},
		[]string{"status"},
	)

	// CycleDuration tracks how long a full cycle over every kind takes
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of pipeline cycles in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// KindRunsTotal counts per-kind runs by outcome
	KindRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "kind_runs_total",
			Help:      "Total number of per-kind runs by status",
		},
		[]string{"kind", "status"},
	)

	// RowsProcessed counts rows that were loaded and checkpointed
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_processed_total",
			Help:      "Total number of rows loaded and checkpointed",
		},
		[]string{"kind"},
	)

	// Watermark exposes the checkpoint of each kind as a unix timestamp
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "watermark_seconds",
			Help:      "Current checkpoint of each kind as unix seconds",
		},
		[]string{"kind"},
	)

	// UpsertsTotal counts index upserts by outcome
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "upserts_total",
			Help:      "Total number of document upserts by status",
		},
		[]string{"index", "status"},
	)

	// UpsertDuration tracks upsert latency including retries
	UpsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "upsert_duration_seconds",
			Help:      "Duration of document upserts in seconds, retries included",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		},
		[]string{"index"},
	)

	// EventsPublished counts change events sent to Kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of document events published by status",
		},
		[]string{"kind", "status"},
	)
)
