// Package metrics provides Prometheus metrics for the ontime service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded in FeedFetchesTotal
const (
	FetchNetwork  = "network"
	FetchCache    = "cache"
	FetchFallback = "fallback"
	FetchFailed   = "failed"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// realtime ingestion
	FeedFetchesTotal    *prometheus.CounterVec
	DecodeErrorsTotal   *prometheus.CounterVec
	FusionPassesTotal   *prometheus.CounterVec
	FusionPassDuration  *prometheus.HistogramVec
	VehiclesPublished   *prometheus.GaugeVec
	UnscheduledVehicles *prometheus.GaugeVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ontime_feed_fetches_total",
			Help: "Realtime feed retrievals by agency, feed kind and outcome.",
		}, []string{"agency", "kind", "outcome"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ontime_feed_decode_errors_total",
			Help: "Realtime feeds that could not be decoded.",
		}, []string{"agency", "kind"}),
		FusionPassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ontime_fusion_passes_total",
			Help: "Fusion passes by agency and result.",
		}, []string{"agency", "result"}),
		FusionPassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ontime_fusion_pass_duration_seconds",
			Help:    "Time taken by a full fetch, decode and fusion pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agency"}),
		VehiclesPublished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ontime_vehicles_published",
			Help: "Vehicles in the most recently published snapshot.",
		}, []string{"agency"}),
		UnscheduledVehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ontime_unscheduled_vehicles",
			Help: "Vehicles in the most recent snapshot without schedule data.",
		}, []string{"agency"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ontime_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ontime_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	registry.MustRegister(
		m.FeedFetchesTotal,
		m.DecodeErrorsTotal,
		m.FusionPassesTotal,
		m.FusionPassDuration,
		m.VehiclesPublished,
		m.UnscheduledVehicles,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObservePass records the result and duration of one fusion pass for agencyId
func (m *Metrics) ObservePass(agencyId string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.FusionPassesTotal.WithLabelValues(agencyId, result).Inc()
	m.FusionPassDuration.WithLabelValues(agencyId).Observe(took.Seconds())
}
