package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for compile runs.
type Metrics struct {
	config MetricsConfig

	// Compile run metrics
	compilesStarted   *prometheus.CounterVec
	compilesCompleted *prometheus.CounterVec
	compileDuration   *prometheus.HistogramVec

	// Stage metrics
	stageDuration *prometheus.HistogramVec

	// Service metrics
	servicesCompiled *prometheus.CounterVec

	// Zone metrics
	zonesRendered  *prometheus.CounterVec
	recordsEmitted *prometheus.CounterVec

	// Substitution metrics
	substitutionPasses *prometheus.HistogramVec

	// Cache metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// Hook metrics
	hookInvocations *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		compilesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_started_total",
				Help:      "Total number of compile runs started",
			},
			[]string{"trigger"},
		),
		compilesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_completed_total",
				Help:      "Total number of compile runs completed",
			},
			[]string{"status"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of compile runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of compile stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		servicesCompiled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "services_compiled_total",
				Help:      "Total number of services compiled",
			},
			[]string{"software", "status"},
		),

		zonesRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zones_rendered_total",
				Help:      "Total number of zone files rendered",
			},
			[]string{"kind"},
		),
		recordsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_emitted_total",
				Help:      "Total number of zone records emitted",
			},
			[]string{"rtype"},
		),

		substitutionPasses: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "substitution_passes",
				Help:      "Number of passes the variable substitution loop took to settle",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
			[]string{"service"},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of build cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of build cache misses",
			},
		),

		hookInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_invocations_total",
				Help:      "Total number of hook script invocations",
			},
			[]string{"phase", "status"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of compile errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.compilesStarted,
		m.compilesCompleted,
		m.compileDuration,
		m.stageDuration,
		m.servicesCompiled,
		m.zonesRendered,
		m.recordsEmitted,
		m.substitutionPasses,
		m.cacheHits,
		m.cacheMisses,
		m.hookInvocations,
		m.errorsByKind,
	)

	return m, nil
}

// RecordCompileStarted increments the counter for started compile runs.
func (m *Metrics) RecordCompileStarted(trigger string) {
	if m.compilesStarted == nil {
		return
	}
	m.compilesStarted.WithLabelValues(trigger).Inc()
}

// RecordCompileCompleted records a completed compile run with its status and
// duration.
func (m *Metrics) RecordCompileCompleted(status string, duration time.Duration) {
	if m.compilesCompleted == nil {
		return
	}
	m.compilesCompleted.WithLabelValues(status).Inc()
	m.compileDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStage records the duration of one compile stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordServiceCompiled records the outcome of compiling one service.
func (m *Metrics) RecordServiceCompiled(software, status string) {
	if m.servicesCompiled == nil {
		return
	}
	m.servicesCompiled.WithLabelValues(software, status).Inc()
}

// RecordZoneRendered records a rendered zone file.
func (m *Metrics) RecordZoneRendered(kind string) {
	if m.zonesRendered == nil {
		return
	}
	m.zonesRendered.WithLabelValues(kind).Inc()
}

// RecordRecordEmitted records one emitted zone record.
func (m *Metrics) RecordRecordEmitted(rtype string) {
	if m.recordsEmitted == nil {
		return
	}
	m.recordsEmitted.WithLabelValues(rtype).Inc()
}

// RecordSubstitutionPasses records how many passes substitution took for a
// service.
func (m *Metrics) RecordSubstitutionPasses(service string, passes int) {
	if m.substitutionPasses == nil {
		return
	}
	m.substitutionPasses.WithLabelValues(service).Observe(float64(passes))
}

// RecordCacheHit records a build cache hit.
func (m *Metrics) RecordCacheHit() {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a build cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordHookInvocation records one hook script invocation.
func (m *Metrics) RecordHookInvocation(phase, status string) {
	if m.hookInvocations == nil {
		return
	}
	m.hookInvocations.WithLabelValues(phase, status).Inc()
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
