// Package metrics holds the Prometheus collectors for imports and exports.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ImportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_imports_total",
		Help: "Imports by terminal outcome.",
	}, []string{"outcome"})

	ImportRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_import_rows_total",
		Help: "Rows seen by committed imports, by result.",
	}, []string{"result"})

	ImportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_import_duration_seconds",
		Help:    "Wall time of a single import.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_exports_total",
		Help: "Exports by format.",
	}, []string{"format"})

	ExportRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_export_rows_total",
		Help: "Rows written by exports.",
	})

	JobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_background_jobs_claimed_total",
		Help: "Background import jobs picked up by the worker.",
	})

	HistoryPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_import_history_purged_total",
		Help: "Import history records removed by retention.",
	})
)

// Import outcome labels.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeInvalid    = "invalid"
	OutcomeValidated  = "validated"
	OutcomeQueued     = "queued"
	OutcomeError      = "error"
)

// MustRegister registers every collector; call it once from main.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ImportsTotal,
		ImportRows,
		ImportDuration,
		ExportsTotal,
		ExportRows,
		JobsClaimed,
		HistoryPurged,
	)
}
