// Package metrics exposes Prometheus collectors for extraction runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry
type Metrics struct {
	Registry       *prometheus.Registry
	PagesTotal     *prometheus.CounterVec
	PageDuration   prometheus.Histogram
	RecordsTotal   prometheus.Counter
	RetriesTotal   prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
	SessionsTotal  prometheus.Counter
	SnapshotsTotal prometheus.Counter
	APIRequests    *prometheus.CounterVec
	AssetsFetched  *prometheus.CounterVec
	Accumulated    prometheus.Gauge
}

// New constructs and registers all collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketscrape_pages_total",
			Help: "Pages fetched, by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketscrape_page_duration_seconds",
			Help:    "Time to navigate and extract one page.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketscrape_records_total",
			Help: "Records extracted.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketscrape_retries_total",
			Help: "Retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketscrape_errors_total",
			Help: "Errors by engine error code.",
		},
		[]string{"code"},
	)
	sessions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketscrape_sessions_opened_total",
			Help: "Browser sessions opened, including recycles.",
		},
	)
	snapshots := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketscrape_snapshots_total",
			Help: "Virtualized list snapshots taken.",
		},
	)
	api := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketscrape_api_requests_total",
			Help: "JSON API requests, by status.",
		},
		[]string{"status"},
	)
	assets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketscrape_assets_total",
			Help: "Image downloads, by outcome.",
		},
		[]string{"outcome"},
	)
	accumulated := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketscrape_accumulated_records",
			Help: "Distinct records held by the sampler accumulator.",
		},
	)

	registry.MustRegister(pages, pageDuration, records, retries, errorsTotal,
		sessions, snapshots, api, assets, accumulated)

	return &Metrics{
		Registry:       registry,
		PagesTotal:     pages,
		PageDuration:   pageDuration,
		RecordsTotal:   records,
		RetriesTotal:   retries,
		ErrorsTotal:    errorsTotal,
		SessionsTotal:  sessions,
		SnapshotsTotal: snapshots,
		APIRequests:    api,
		AssetsFetched:  assets,
		Accumulated:    accumulated,
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObservePage records one page attempt
func (m *Metrics) ObservePage(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
	m.PageDuration.Observe(d.Seconds())
}

// AddRecords increments the extracted records counter
func (m *Metrics) AddRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.Add(float64(n))
}

// IncRetries increments the retries counter
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a code
func (m *Metrics) IncError(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// IncSessions counts an opened session
func (m *Metrics) IncSessions() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

// Snapshot counts a snapshot and updates the accumulator size
func (m *Metrics) Snapshot(accumulated int) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.Inc()
	m.Accumulated.Set(float64(accumulated))
}

// IncAPI counts a JSON API request by status label
func (m *Metrics) IncAPI(status string) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(status).Inc()
}

// IncAsset counts an image download by outcome
func (m *Metrics) IncAsset(outcome string) {
	if m == nil {
		return
	}
	m.AssetsFetched.WithLabelValues(outcome).Inc()
}
