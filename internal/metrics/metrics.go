// Package metrics exposes the pipeline's Prometheus instrumentation,
// used alongside zap for request/stage-level observability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the pipeline emits on a private
// registry; it never registers on the global default registry, leaving
// callers to decide where and whether to expose it.
type Registry struct {
	reg *prometheus.Registry

	IngestRowsTotal        *prometheus.CounterVec
	LoaderDuplicatesTotal  *prometheus.CounterVec
	RecoRunDuration        *prometheus.HistogramVec
	AuditGateExportTotal   *prometheus.CounterVec
	StorageRetryTotal      *prometheus.CounterVec
}

// New builds and registers every collector.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.IngestRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vcrm_ingest_rows_total",
		Help: "Rows processed by the ingestion stage, by table and outcome.",
	}, []string{"table", "outcome"})

	r.LoaderDuplicatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vcrm_loader_duplicates_total",
		Help: "Natural-key duplicates collapsed by the loader, by table.",
	}, []string{"table"})

	r.RecoRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vcrm_reco_run_duration_seconds",
		Help:    "Wall-clock duration of a full recommendation run, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	r.AuditGateExportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vcrm_audit_gate_export_total",
		Help: "Run-level export gate decisions, by gated/open.",
	}, []string{"gate"})

	r.StorageRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vcrm_storage_retry_total",
		Help: "Storage operations retried after a transient error, by op.",
	}, []string{"op"})

	r.reg.MustRegister(
		r.IngestRowsTotal,
		r.LoaderDuplicatesTotal,
		r.RecoRunDuration,
		r.AuditGateExportTotal,
		r.StorageRetryTotal,
	)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
