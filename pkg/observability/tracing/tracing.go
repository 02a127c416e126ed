// Package tracing wires OpenTelemetry spans around the replication and
// execution paths. With tracing off every call site pays one atomic load.
package tracing

import (
    "context"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracerName = "ledger-core"

var active atomic.Bool

// Setup installs a global tracer provider backed by the stdout exporter
// when enable is true. The returned shutdown flushes pending spans and
// should be deferred by the caller.
func Setup(enable bool) (func(context.Context) error, error) {
    if !enable {
        active.Store(false)
        return func(context.Context) error { return nil }, nil
    }
    exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        return nil, err
    }
    provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
    otel.SetTracerProvider(provider)
    active.Store(true)
    return provider.Shutdown, nil
}

// StartSpan opens a span when tracing is active. The returned func ends
// the span; with tracing off both returns are no-ops.
func StartSpan(ctx context.Context, name string) (context.Context, func()) {
    if !active.Load() {
        return ctx, func() {}
    }
    ctx, span := otel.Tracer(tracerName).Start(ctx, name)
    return ctx, func() { span.End() }
}
