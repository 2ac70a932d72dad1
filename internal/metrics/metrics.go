// Package metrics defines the Prometheus collectors for the contract storage service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contractstore"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics owns a private registry so tests and multiple servers never collide
// on the default one. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transfersTotal     *prometheus.CounterVec
	transferBytesTotal *prometheus.CounterVec

	backupsTotal    *prometheus.CounterVec
	restoresTotal   *prometheus.CounterVec
	migrationsTotal *prometheus.CounterVec

	batchRunsTotal  *prometheus.CounterVec
	batchItemsTotal *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec

	usageBytes  *prometheus.GaugeVec
	usageFiles  *prometheus.GaugeVec
	billingCost *prometheus.GaugeVec
}

// New creates and registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Storage provider calls by provider, operation and status.",
		}, []string{"provider", "operation", "status"}),

		transferBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved through storage providers.",
		}, []string{"provider", "operation"}),

		backupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backups attempted by kind and status.",
		}, []string{"kind", "status"}),

		restoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restores attempted by status.",
		}, []string{"status"}),

		migrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Document migrations by terminal status.",
		}, []string{"status"}),

		batchRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Batch job runs.",
		}, []string{"job"}),

		batchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch job items by status.",
		}, []string{"job", "status"}),

		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch job wall-clock duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),

		usageBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_usage_bytes",
			Help:      "Bytes stored per organization at the last usage refresh.",
		}, []string{"organization", "storage_type"}),

		usageFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_usage_files",
			Help:      "Objects stored per organization at the last usage refresh.",
		}, []string{"organization", "storage_type"}),

		billingCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "billing_cost",
			Help:      "Latest calculated storage cost per organization.",
		}, []string{"organization", "storage_type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transfersTotal,
		m.transferBytesTotal,
		m.backupsTotal,
		m.restoresTotal,
		m.migrationsTotal,
		m.batchRunsTotal,
		m.batchItemsTotal,
		m.batchDuration,
		m.usageBytes,
		m.usageFiles,
		m.billingCost,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// RecordTransfer counts one provider call and the bytes it moved.
func (m *Metrics) RecordTransfer(provider, operation string, bytes int64, err error) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(provider, operation, status(err)).Inc()
	if err == nil && bytes > 0 {
		m.transferBytesTotal.WithLabelValues(provider, operation).Add(float64(bytes))
	}
}

// RecordBackup counts one backup attempt.
func (m *Metrics) RecordBackup(kind string, success bool) {
	if m == nil {
		return
	}
	m.backupsTotal.WithLabelValues(kind, boolStatus(success)).Inc()
}

// RecordRestore counts one restore attempt.
func (m *Metrics) RecordRestore(success bool) {
	if m == nil {
		return
	}
	m.restoresTotal.WithLabelValues(boolStatus(success)).Inc()
}

// RecordMigration counts one migration by its terminal status.
func (m *Metrics) RecordMigration(status string) {
	if m == nil {
		return
	}
	m.migrationsTotal.WithLabelValues(status).Inc()
}

// RecordBatch records one finished batch run.
func (m *Metrics) RecordBatch(job string, success, failed int, skipped bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchRunsTotal.WithLabelValues(job).Inc()
	if skipped {
		m.batchItemsTotal.WithLabelValues(job, StatusSkipped).Add(0)
		return
	}
	m.batchItemsTotal.WithLabelValues(job, StatusSuccess).Add(float64(success))
	m.batchItemsTotal.WithLabelValues(job, StatusFailure).Add(float64(failed))
	m.batchDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// SetUsage publishes the latest usage snapshot for an organization.
func (m *Metrics) SetUsage(organizationID, storageType string, bytes, files int64) {
	if m == nil {
		return
	}
	m.usageBytes.WithLabelValues(organizationID, storageType).Set(float64(bytes))
	m.usageFiles.WithLabelValues(organizationID, storageType).Set(float64(files))
}

// SetBillingCost publishes the latest calculated cost for an organization.
func (m *Metrics) SetBillingCost(organizationID, storageType string, cost float64) {
	if m == nil {
		return
	}
	m.billingCost.WithLabelValues(organizationID, storageType).Set(cost)
}

func boolStatus(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}
