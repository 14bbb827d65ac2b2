package telemetry

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config

	logCloser io.Closer
}

type telemetryContextKey struct{}

// NewTelemetry builds every component from cfg.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// WithContext stores t and its logger in ctx. zerolog.Ctx(ctx) then returns
// the telemetry logger.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromContext returns the Telemetry stored in ctx, or nil.
func FromContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t
}

// Shutdown flushes the tracer and closes the log output.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.logCloser != nil {
		if err := t.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Operation is one traced, timed and logged pipeline stage.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger zerolog.Logger
	Timer  *Timer
}

// StartOperation begins a stage. Without Telemetry in ctx the span is a
// no-op and the logger is the context logger.
func StartOperation(ctx context.Context, stage string, attrs ...attribute.KeyValue) *Operation {
	tel := FromContext(ctx)
	if tel == nil {
		logger := zerolog.Ctx(ctx).With().Str("stage", stage).Logger()
		return &Operation{
			Ctx:    logger.WithContext(ctx),
			Span:   trace.SpanFromContext(ctx),
			Logger: logger,
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartStage(ctx, stage, attrs...)

	lctx := tel.Logger.With().Str("stage", stage)
	if sc := span.SpanContext(); sc.IsValid() {
		lctx = lctx.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	logger := lctx.Logger()

	return &Operation{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the stage, recording err on the span. The span of an
// operation started without Telemetry belongs to the caller and is left open.
func (op *Operation) End(err error) {
	RecordError(op.Span, err)
	if err != nil {
		op.Logger.Debug().Err(err).Dur("took", op.Timer.Duration()).Msg("stage failed")
	} else {
		op.Logger.Debug().Dur("took", op.Timer.Duration()).Msg("stage finished")
	}
	if FromContext(op.Ctx) != nil {
		op.Span.End()
	}
}
