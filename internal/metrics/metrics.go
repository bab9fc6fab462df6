// Package metrics provides Prometheus metrics for the document store.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kiabasekou/ged-project/internal/model"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so packages can take one without forcing tests to build a registry.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	IntegrityFailures prometheus.Counter
	VersionConflicts  prometheus.Counter
	AuditFailures     *prometheus.CounterVec
	AuditDropped      prometheus.Counter
	OrphansDeleted    prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ged_store_operations_total",
			Help: "Document store operations by outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ged_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "ged_integrity_failures_total",
			Help: "Payloads that failed decryption or digest verification",
		}),
		VersionConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "ged_version_conflicts_total",
			Help: "Version transitions rejected because another one won the race",
		}),
		AuditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ged_audit_failures_total",
			Help: "Audit notifications that could not be delivered",
		}, []string{"action"}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "ged_audit_dropped_total",
			Help: "Audit events dropped because the dispatch queue was full",
		}),
		OrphansDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "ged_orphan_blobs_deleted_total",
			Help: "Unreferenced encrypted payloads removed by the collector",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ged_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
	}
}

// Outcome classifies an operation error into a low cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrDuplicateContent):
		return "duplicate"
	case errors.Is(err, model.ErrVersionConflict),
		errors.Is(err, model.ErrCurrentVersionExists),
		errors.Is(err, model.ErrNotCurrentVersion),
		errors.Is(err, model.ErrAlreadyCurrent):
		return "conflict"
	case model.IsIntegrityFailure(err):
		return "integrity"
	}
	return "error"
}

// ObserveOperation records one store operation started at start.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	switch outcome {
	case "integrity":
		m.IntegrityFailures.Inc()
	case "conflict":
		if errors.Is(err, model.ErrVersionConflict) {
			m.VersionConflicts.Inc()
		}
	}
}

// IntegrityFailure counts a failed check that did not surface as an error,
// such as Verify returning false.
func (m *Metrics) IntegrityFailure() {
	if m == nil {
		return
	}
	m.IntegrityFailures.Inc()
}

// AuditFailure counts an audit notification the sink rejected.
func (m *Metrics) AuditFailure(action string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(action).Inc()
}

// AuditDrop counts an audit event dropped by a full queue.
func (m *Metrics) AuditDrop() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// OrphansRemoved adds n deleted orphan payloads.
func (m *Metrics) OrphansRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrphansDeleted.Add(float64(n))
}

// ObserveHTTP counts a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusText(status)).Inc()
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
