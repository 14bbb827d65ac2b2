// Package telemetry instruments the cfgtree pipeline with structured logging
// (zerolog), tracing (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Build a Telemetry once at startup and put it in the context:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// Each pipeline stage is wrapped in an Operation, which owns a span, a
// logger tagged with the stage and a timer:
//
//	op := telemetry.StartOperation(ctx, telemetry.StageResolve)
//	res := engine.Resolve(order, features, raw, mode)
//	tel.Metrics.RecordResolution(res, op.Timer.Duration())
//	telemetry.AnnotateResolution(op.Span, res)
//	op.End(res.Err())
//
// # Metrics
//
//   - cfgtree_resolutions_total{mode,outcome}
//   - cfgtree_resolution_duration_seconds{mode}
//   - cfgtree_diagnostics_total{kind,severity}
//   - cfgtree_schema_errors_total{code}
//   - cfgtree_policy_violations_total{policy,severity}
//   - cfgtree_active_options
//
// Metrics are collected on a private registry. Metrics.Serve exposes them
// over HTTP for long running commands such as check --watch.
//
// # Tracing
//
// Tracing is off by default. The stdout exporter prints spans for local
// debugging; the otlp exporter ships them to a collector over gRPC.
package telemetry
