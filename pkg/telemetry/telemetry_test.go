package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/policy"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "no service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name:    "bad exporter",
			mutate:  func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" },
			wantErr: "invalid trace exporter",
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" },
			wantErr: "endpoint",
		},
		{name: "sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"service name", "log format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfigApplyEnv(t *testing.T) {
	env := map[string]string{EndpointEnv: "collector:4317"}

	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("endpoint = %q", cfg.Tracing.Endpoint)
	}

	cfg = DefaultConfig()
	cfg.Tracing.Endpoint = "flag:4317"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Tracing.Endpoint != "flag:4317" {
		t.Errorf("flag endpoint overridden: %q", cfg.Tracing.Endpoint)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"trace": zerolog.TraceLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogDiagnostics(&logger, []engine.Diagnostic{
		{Path: "a.b", Kind: engine.OrphanKey, Severity: engine.SeverityWarning, Message: "no such option"},
		{Path: "a.c", Kind: engine.MissingValue, Severity: engine.SeverityError, Message: "no value"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"warn"`) || !strings.Contains(lines[0], `"path":"a.b"`) {
		t.Errorf("line 0 = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"error"`) || !strings.Contains(lines[1], `"kind":"MissingValue"`) {
		t.Errorf("line 1 = %s", lines[1])
	}
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsRecordSchemaError(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	se := schema.NewSchemaError(schema.ErrCodeDependencyCycle, "circular dependency detected", nil)
	m.RecordSchemaError(engine.ModeStrict, fmt.Errorf("build order: %w", se))
	m.RecordSchemaError(engine.ModeStrict, io.ErrUnexpectedEOF)

	if got := counterValue(t, m, "cfgtree_schema_errors_total", map[string]string{"code": "DEPENDENCY_CYCLE"}); got != 1 {
		t.Errorf("DEPENDENCY_CYCLE = %v, want 1", got)
	}
	if got := counterValue(t, m, "cfgtree_schema_errors_total", map[string]string{"code": "UNKNOWN"}); got != 1 {
		t.Errorf("UNKNOWN = %v, want 1", got)
	}
	got := counterValue(t, m, "cfgtree_resolutions_total", map[string]string{"mode": "strict", "outcome": OutcomeSchemaError})
	if got != 2 {
		t.Errorf("resolutions_total = %v, want 2", got)
	}
}

func TestMetricsRecordPolicyResult(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordPolicyResult(&policy.Result{Violations: []policy.Violation{
		{Policy: "no-debug", Severity: policy.SeverityError},
		{Policy: "no-debug", Severity: policy.SeverityError},
	}})
	m.RecordPolicyResult(nil)

	labels := map[string]string{"policy": "no-debug", "severity": "error"}
	if got := counterValue(t, m, "cfgtree_policy_violations_total", labels); got != 2 {
		t.Errorf("violations = %v, want 2", got)
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.Registry() != nil {
		t.Fatal("disabled metrics must not have a registry")
	}
	m.RecordSchemaError(engine.ModeStrict, io.EOF)
	m.RecordPolicyResult(&policy.Result{})
}

func TestMetricsServe(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordSchemaError(engine.ModeLenient, io.EOF)

	ctx, cancel := context.WithCancel(context.Background())
	addr, errc, err := m.Serve(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "cfgtree_schema_errors_total") {
		t.Errorf("metrics body missing counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("serve error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartOperationWithTelemetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	if FromContext(ctx) != tel {
		t.Fatal("telemetry not stored in context")
	}

	op := StartOperation(ctx, StageMerge)
	if FromContext(op.Ctx) != tel {
		t.Error("operation context lost telemetry")
	}
	op.End(nil)
}
