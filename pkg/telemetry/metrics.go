package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/policy"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Outcome label values for resolutions_total.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeSchemaError = "schema_error"
)

// Metrics provides Prometheus collectors for the resolution pipeline. A
// disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	resolutions      *prometheus.CounterVec
	resolutionTime   *prometheus.HistogramVec
	diagnostics      *prometheus.CounterVec
	schemaErrors     *prometheus.CounterVec
	policyViolations *prometheus.CounterVec
	activeOptions    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of resolution passes by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		resolutionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of resolution passes in seconds",
				Buckets:   buckets,
			},
			[]string{"mode"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Diagnostics reported by resolution passes",
			},
			[]string{"kind", "severity"},
		),
		schemaErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_errors_total",
				Help:      "Definition sets rejected before resolution, by error code",
			},
			[]string{"code"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Policy violations found in resolved configurations",
			},
			[]string{"policy", "severity"},
		),
		activeOptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_options",
				Help:      "Active options in the latest resolved configuration",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.resolutions,
		m.resolutionTime,
		m.diagnostics,
		m.schemaErrors,
		m.policyViolations,
		m.activeOptions,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Registry returns the registry the collectors live on, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordResolution counts a finished pass and its diagnostics.
func (m *Metrics) RecordResolution(res *engine.Resolution, took time.Duration) {
	if m.registry == nil {
		return
	}
	mode := res.Mode.String()
	outcome := OutcomeSuccess
	if res.Failed() {
		outcome = OutcomeFailed
	}
	m.resolutions.WithLabelValues(mode, outcome).Inc()
	m.resolutionTime.WithLabelValues(mode).Observe(took.Seconds())
	m.activeOptions.Set(float64(res.Config.Len()))
	for _, d := range res.Diagnostics {
		m.diagnostics.WithLabelValues(string(d.Kind), d.Severity.String()).Inc()
	}
}

// RecordSchemaError counts a definition set rejected before resolving.
// Errors that are not schema errors are counted under the code "UNKNOWN".
func (m *Metrics) RecordSchemaError(mode engine.Mode, err error) {
	if m.registry == nil || err == nil {
		return
	}
	code := "UNKNOWN"
	var se *schema.SchemaError
	if errors.As(err, &se) {
		code = se.Code
	}
	m.resolutions.WithLabelValues(mode.String(), OutcomeSchemaError).Inc()
	m.schemaErrors.WithLabelValues(code).Inc()
}

// RecordPolicyResult counts the violations of a policy evaluation.
func (m *Metrics) RecordPolicyResult(result *policy.Result) {
	if m.registry == nil || result == nil {
		return
	}
	for _, v := range result.Violations {
		m.policyViolations.WithLabelValues(v.Policy, string(v.Severity)).Inc()
	}
}

// Timer measures the duration of one operation.
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics on addr until ctx is cancelled. It returns once
// the listener is bound; serve errors after that are sent to errc.
func (m *Metrics) Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return ln.Addr(), errc, nil
}
