package outputs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// PrometheusOutput exposes vitals via HTTP endpoint
type PrometheusOutput struct {
	config   *config.PrometheusConfig
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener

	// Readings
	readingsTotal        *prometheus.CounterVec
	vitalValue           *prometheus.GaugeVec
	timingHistogram      *prometheus.HistogramVec
	layoutShiftHistogram *prometheus.HistogramVec
	lastReadingSeconds   *prometheus.GaugeVec

	// Visits
	visitsTotal     *prometheus.CounterVec
	visitDurationMs *prometheus.GaugeVec
	backendTotal    *prometheus.CounterVec
	libraryRetries  *prometheus.CounterVec
}

// NewPrometheusOutput creates a new Prometheus exporter
func NewPrometheusOutput(cfg *config.PrometheusConfig) (*PrometheusOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	p := &PrometheusOutput{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	p.readingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_vitals_readings_total",
			Help: "Total number of readings by page, signal and rating",
		},
		[]string{"page", "signal", "rating"},
	)

	p.vitalValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_vitals_value",
			Help: "Most recent value of each signal (milliseconds, CLS is unitless)",
		},
		[]string{"page", "signal"},
	)

	// Use configured buckets or default
	latencyBuckets := cfg.LatencyBuckets
	if len(latencyBuckets) == 0 {
		latencyBuckets = []float64{100, 200, 500, 800, 1000, 1800, 2500, 3000, 4000, 6000, 10000}
	}
	scoreBuckets := cfg.ScoreBuckets
	if len(scoreBuckets) == 0 {
		scoreBuckets = []float64{0.01, 0.05, 0.1, 0.15, 0.25, 0.5, 1}
	}

	p.timingHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_vitals_timing_ms",
			Help:    "Histogram of timing signals (TTFB, FCP, LCP, INP) in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"page", "signal"},
	)

	p.layoutShiftHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_vitals_cls_score",
			Help:    "Histogram of cumulative layout shift scores",
			Buckets: scoreBuckets,
		},
		[]string{"page"},
	)

	p.lastReadingSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_vitals_last_reading_timestamp_seconds",
			Help: "Unix timestamp of the most recent reading",
		},
		[]string{"page", "signal"},
	)

	p.visitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_vitals_visits_total",
			Help: "Total number of page visits",
		},
		[]string{"page", "status"},
	)

	p.visitDurationMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_vitals_visit_duration_ms",
			Help: "Duration of the most recent visit including dwell time",
		},
		[]string{"page"},
	)

	p.backendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_vitals_backend_total",
			Help: "Visits by the collector backend that served them",
		},
		[]string{"page", "backend"},
	)

	p.libraryRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_vitals_library_retries_total",
			Help: "Retries spent loading the measurement library",
		},
		[]string{"page"},
	)

	p.registry.MustRegister(
		p.readingsTotal,
		p.vitalValue,
		p.timingHistogram,
		p.layoutShiftHistogram,
		p.lastReadingSeconds,
		p.visitsTotal,
		p.visitDurationMs,
		p.backendTotal,
		p.libraryRetries,
	)

	if cfg.IncludeGoMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	p.listener = listener
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting Prometheus exporter on %s%s", listener.Addr(), cfg.Path)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return p, nil
}

// Addr returns the address the exporter listens on
func (p *PrometheusOutput) Addr() string {
	return p.listener.Addr().String()
}

// Write updates Prometheus metrics with one reading
func (p *PrometheusOutput) Write(event *models.VitalEvent) error {
	if p == nil {
		return nil
	}

	page := pageLabel(event.Page)
	signal := event.Vital.Signal

	p.readingsTotal.WithLabelValues(page, signal, event.Vital.Rating).Inc()
	p.vitalValue.WithLabelValues(page, signal).Set(event.Vital.Value)
	p.lastReadingSeconds.WithLabelValues(page, signal).Set(float64(event.Timestamp.Unix()))

	if vitals.Signal(signal).Unitless() {
		p.layoutShiftHistogram.WithLabelValues(page).Observe(event.Vital.Value)
	} else {
		p.timingHistogram.WithLabelValues(page, signal).Observe(event.Vital.Value)
	}

	return nil
}

// RecordVisit updates visit metrics
func (p *PrometheusOutput) RecordVisit(result *models.VisitResult) {
	if p == nil {
		return
	}

	page := pageLabel(result.Page)

	status := "failure"
	if result.Status.Success {
		status = "success"
	}
	p.visitsTotal.WithLabelValues(page, status).Inc()
	p.visitDurationMs.WithLabelValues(page).Set(float64(result.DurationMs))

	if result.Status.Success {
		p.backendTotal.WithLabelValues(page, result.Collector.Backend).Inc()
	}
	if result.Collector.RetryCount > 0 {
		p.libraryRetries.WithLabelValues(page).Add(float64(result.Collector.RetryCount))
	}
}

// Name returns the output module name
func (p *PrometheusOutput) Name() string {
	return "prometheus"
}

// Close shuts down the HTTP server
func (p *PrometheusOutput) Close() error {
	if p == nil || p.server == nil {
		return nil
	}

	log.Println("Shutting down Prometheus exporter...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.server.Shutdown(ctx)
}

func pageLabel(page models.PageInfo) string {
	if page.Name != "" {
		return page.Name
	}
	return page.URL
}
