// Package observability exposes run metrics in Prometheus format.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks one collection run. All methods are safe on a nil receiver
// so components can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched    *prometheus.CounterVec // by fetcher type and cache hit
	FetchAttempts   *prometheus.CounterVec // by outcome: ok, error, soft_block
	FetchDuration   prometheus.Histogram
	Records         *prometheus.CounterVec // by job kind
	RecordsDropped  *prometheus.CounterVec // by pipeline stage
	Images          *prometheus.CounterVec // by status
	QualityFailures *prometheus.CounterVec // by ranking type

	logger *slog.Logger
	server *http.Server
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_pages_fetched_total",
			Help: "Ranking pages fetched successfully.",
		}, []string{"fetcher", "cached"}),
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_fetch_attempts_total",
			Help: "Fetch attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cosmerank_fetch_duration_seconds",
			Help:    "Duration of successful page fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_records_total",
			Help: "Records assembled by job kind.",
		}, []string{"kind"}),
		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_records_dropped_total",
			Help: "Records dropped by pipeline stage.",
		}, []string{"stage"}),
		Images: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_images_total",
			Help: "Image downloads by result status.",
		}, []string{"status"}),
		QualityFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosmerank_quality_failures_total",
			Help: "Quality check failures by ranking type.",
		}, []string{"ranking_type"}),
		logger: logger.With("component", "metrics"),
	}
}

// ObserveAttempt records the outcome of one fetch attempt.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
}

// ObservePage records a fetched page.
func (m *Metrics) ObservePage(fetcher string, cached bool, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(fetcher, fmt.Sprint(cached)).Inc()
	if !cached {
		m.FetchDuration.Observe(d.Seconds())
	}
}

// ObserveRecord records an assembled record.
func (m *Metrics) ObserveRecord(kind string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(kind).Inc()
}

// ObserveDrop records a record dropped by a pipeline stage.
func (m *Metrics) ObserveDrop(stage string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(stage).Inc()
}

// ObserveImage records an image download result.
func (m *Metrics) ObserveImage(status string) {
	if m == nil {
		return
	}
	m.Images.WithLabelValues(status).Inc()
}

// ObserveQualityFailure records a failed quality check.
func (m *Metrics) ObserveQualityFailure(rankingType string) {
	if m == nil {
		return
	}
	m.QualityFailures.WithLabelValues(rankingType).Inc()
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Snapshot sums every counter family into a flat map keyed by metric name.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				out[mf.GetName()] += c.GetValue()
			}
		}
	}
	return out, nil
}
