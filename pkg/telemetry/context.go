package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/layerwave/layerwave/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context,
// or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes traces and closes the log output.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracer.Shutdown(ctx), t.Logger.Close())
}

// Operation is an instrumented unit of work with a span and a timer.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger zerolog.Logger

	name    string
	started time.Time
}

// StartOperation begins an instrumented operation. Without telemetry in the
// context it still times the operation and logs through the context logger.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{
		Ctx:     ctx,
		Logger:  FromContext(ctx).Zerolog().With().Str("operation", name).Logger(),
		name:    name,
		started: time.Now(),
	}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return op
	}

	op.Ctx, op.Span = tel.Tracer.StartSpan(ctx, name, attrs...)
	if sc := op.Span.SpanContext(); sc.IsValid() {
		op.Logger = op.Logger.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return op
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.started)
}

// End finishes the operation, recording success or failure on its span.
func (op *Operation) End(err error) {
	if err != nil {
		op.Logger.Debug().Err(err).Dur("duration", op.Elapsed()).Msg("operation failed")
	}
	if op.Span == nil {
		return
	}
	if err != nil {
		RecordError(op.Span, err)
	} else {
		RecordSuccess(op.Span)
	}
	op.Span.End()
}

// ComputePlan runs the planner inside a traced, timed operation and records
// the outcome in the metrics.
func (t *Telemetry) ComputePlan(ctx context.Context, planner *engine.Planner, req engine.Request) (*engine.Plan, error) {
	ctx = t.WithContext(ctx)
	spanCtx, span := t.Tracer.StartPlanSpan(ctx, len(req.Layers), req.Target.String())
	defer span.End()

	started := time.Now()
	plan, err := planner.Plan(spanCtx, req)
	if err != nil {
		RecordError(span, err)
		t.Metrics.RecordPlanFailure(err)
		return nil, err
	}

	AnnotatePlan(span, plan)
	RecordSuccess(span)
	t.Metrics.RecordPlan(plan, time.Since(started))

	logger := t.Logger.WithPlan(plan.ID, plan.Target.String()).Zerolog()
	logger.Debug().
		Str("trace_id", TraceID(spanCtx)).
		Int("waves", len(plan.Waves)).
		Dur("duration", time.Since(started)).
		Msg("plan computed")
	return plan, nil
}
