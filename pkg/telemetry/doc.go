// Package telemetry provides observability for layerwave: structured logging
// with zerolog, tracing with OpenTelemetry and metrics with Prometheus.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	plan, err := tel.ComputePlan(ctx, engine.NewPlanner(), req)
//
// ComputePlan wraps one planning run in a "plan.compute" span, records the
// run in the plans_computed_total, plan_duration_seconds and waves_per_plan
// metrics and counts failures by engine error class and code.
//
// # Tracing
//
// Tracing is off by default. The otlp exporter ships spans over gRPC to
// Tracing.Endpoint; the stdout exporter pretty-prints them for debugging.
//
// # Metrics
//
// Metrics live in a private registry exposed by Metrics.Handler. A disabled
// Metrics accepts every Record call and discards it.
package telemetry
