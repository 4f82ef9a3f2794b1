// Package metrics exposes run-level Prometheus metrics. Serve mode
// publishes them on the configured listen address; one-shot runs still
// record them so a scrape between runs sees the latest state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reckon_runs_total",
		Help: "Total reconciliation runs, labelled by outcome.",
	}, []string{"status"})

	RecordsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reckon_records_reconciled_total",
		Help: "Total canonical records produced, labelled by match state.",
	}, []string{"match_state"})

	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reckon_records_skipped_total",
		Help: "Total records skipped for malformed identifiers or payloads.",
	})

	ViolationsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reckon_violations_detected_total",
		Help: "Total zero-trust violations, labelled by rule.",
	}, []string{"rule_id"})

	ParityDeviation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reckon_parity_relative_deviation",
		Help: "Relative deviation between flat and aggregate stamped counts, last run.",
	})

	SLOFailing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reckon_slo_failing",
		Help: "Number of SLOs failing as of the last run.",
	})

	AlertsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reckon_alerts_open",
		Help: "Active plus acknowledged alert events after the last run.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reckon_run_duration_seconds",
		Help:    "End-to-end reconciliation run latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)
