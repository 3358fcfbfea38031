// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every counter/histogram/gauge the pipeline records.
type Metrics struct {
	FetchOutcomes      *prometheus.CounterVec
	FetchLatency       *prometheus.HistogramVec
	BreakerStateChange *prometheus.CounterVec
	RowsSpilled        *prometheus.CounterVec
	RowsMerged         *prometheus.CounterVec
	ValidationIssues   *prometheus.CounterVec
	DaysCompleted      *prometheus.CounterVec
	ActiveSymbols      prometheus.Gauge

	server *http.Server
	logger *zap.Logger
}

// New builds and registers every metric.
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_fetch_outcomes_total",
			Help: "Total fetch attempts by terminal outcome.",
		}, []string{"outcome"}),
		FetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fxhistorian_fetch_latency_seconds",
			Help:    "Per-blob fetch latency including internal retries.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"symbol"}),
		BreakerStateChange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
		RowsSpilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_rows_spilled_total",
			Help: "Rows written to per-day partial files.",
		}, []string{"symbol"}),
		RowsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_rows_merged_total",
			Help: "Rows written to the final merged output file.",
		}, []string{"symbol"}),
		ValidationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_validation_issues_total",
			Help: "Validator issue counts by kind.",
		}, []string{"symbol", "kind"}),
		DaysCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxhistorian_days_completed_total",
			Help: "Trading days fully processed.",
		}, []string{"symbol", "result"}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxhistorian_active_symbols",
			Help: "Symbols currently running.",
		}),
	}

	prometheus.MustRegister(
		m.FetchOutcomes, m.FetchLatency, m.BreakerStateChange,
		m.RowsSpilled, m.RowsMerged, m.ValidationIssues, m.DaysCompleted, m.ActiveSymbols,
	)

	return m
}

// Start serves /metrics on the given port.
func (m *Metrics) Start(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	m.logger.Info("starting metrics server", zap.Int("port", port))

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the metrics server down.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
