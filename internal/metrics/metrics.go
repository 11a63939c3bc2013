// Package metrics provides Prometheus metrics for the document core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/inkwell/internal/document"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	savesTotal      *prometheus.CounterVec
	saveDuration    *prometheus.HistogramVec
	openDocuments   prometheus.Gauge
	dirtyDocuments  prometheus.Gauge
	reconcileEvents *prometheus.CounterVec
	rpcRequests     *prometheus.CounterVec
	flushesTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		savesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_saves_total",
				Help: "Total number of document saves",
			},
			[]string{"mode", "result"},
		),
		saveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inkwell_save_duration_seconds",
				Help:    "Store write duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		openDocuments: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inkwell_open_documents",
				Help: "Number of open documents",
			},
		),
		dirtyDocuments: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inkwell_dirty_documents",
				Help: "Number of open documents with unsaved changes",
			},
		),
		reconcileEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_reconcile_events_total",
				Help: "Total external change events applied to the registry",
			},
			[]string{"kind", "outcome"},
		),
		rpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_rpc_requests_total",
				Help: "Total JSON-RPC requests handled",
			},
			[]string{"method", "result"},
		),
		flushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inkwell_exit_flushes_total",
				Help: "Total flush-before-exit triggers",
			},
			[]string{"result"},
		),
	}
}

// Handler returns an HTTP handler serving the metrics in gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordSave records one save attempt.
func (m *Metrics) RecordSave(manual bool, err error, duration time.Duration) {
	if m == nil {
		return
	}
	mode := "background"
	if manual {
		mode = "manual"
	}
	m.savesTotal.WithLabelValues(mode, result(err)).Inc()
	m.saveDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordReconcile records one applied external event.
func (m *Metrics) RecordReconcile(kind, outcome string) {
	if m == nil {
		return
	}
	m.reconcileEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordRPC records one handled RPC request.
func (m *Metrics) RecordRPC(method string, err error) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, result(err)).Inc()
}

// RecordFlush records one accepted flush trigger.
func (m *Metrics) RecordFlush(success bool) {
	if m == nil {
		return
	}
	if success {
		m.flushesTotal.WithLabelValues("success").Inc()
	} else {
		m.flushesTotal.WithLabelValues("error").Inc()
	}
}

// TrackRegistry keeps the document gauges in step with r.
func (m *Metrics) TrackRegistry(r *document.Registry) {
	if m == nil {
		return
	}
	update := func() {
		stats := r.Stats()
		m.openDocuments.Set(float64(stats.Open))
		m.dirtyDocuments.Set(float64(stats.Dirty))
	}
	update()
	r.OnChange(func(document.Change) { update() })
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
