// Package metrics holds the Prometheus collectors for ledger operations,
// domain events, the live event stream and HTTP traffic.
package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/ledger"
)

const namespace = "rentledger"

// Metrics is the set of collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	Operations     *prometheus.CounterVec
	OperationTime  *prometheus.HistogramVec
	Retries        *prometheus.CounterVec
	Events         *prometheus.CounterVec
	AdvanceApplied prometheus.Counter
	StreamClients  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by name and outcome (ok or error kind).",
		}, []string{"op", "outcome"}),
		OperationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation latency including lock wait and retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_conflict_retries_total",
			Help:      "Transactions retried after a concurrent modification.",
		}, []string{"op"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published by type and category.",
		}, []string{"event_type", "category"}),
		AdvanceApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advance_rent_applied_amount_total",
			Help:      "Sum of advance rent applied to invoices, all currencies.",
		}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected live event stream clients.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveOperation implements ledger.Observer.
func (m *Metrics) ObserveOperation(op string, kind ledger.ErrorKind, elapsed time.Duration) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationTime.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRetry implements ledger.Observer.
func (m *Metrics) ObserveRetry(op string) {
	m.Retries.WithLabelValues(op).Inc()
}

// ObserveEvent counts a published domain event.
func (m *Metrics) ObserveEvent(evt event.DomainEvent) {
	m.Events.WithLabelValues(evt.EventType, evt.Category).Inc()
	if evt.EventType != "advance_rent_applied" {
		return
	}
	var p event.AdvanceRentAppliedPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return
	}
	if amt := p.Amount.Amount.InexactFloat64(); amt > 0 {
		m.AdvanceApplied.Add(amt)
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
