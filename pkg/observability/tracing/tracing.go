package tracing

import (
    "context"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/codes"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

var enabled atomic.Bool

// Setup configures a global tracer provider when enable=true.
// It returns a shutdown function which should be deferred.
func Setup(enable bool) (func(context.Context) error, error) {
    enabled.Store(enable)
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// Span is a started span; End records err (if any) on the span and ends it.
type Span struct{ s trace.Span }

func (s Span) End(err error) {
    if s.s == nil { return }
    if err != nil {
        s.s.RecordError(err)
        s.s.SetStatus(codes.Error, err.Error())
    }
    s.s.End()
}

// StartSpan starts a span named name when tracing is enabled, tagged with
// the given string attributes (key, value pairs).
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, Span) {
    if !enabled.Load() {
        return ctx, Span{}
    }
    attrs := make([]attribute.KeyValue, 0, len(kv)/2)
    for i := 0; i+1 < len(kv); i += 2 {
        attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
    }
    ctx, span := otel.Tracer("nnagent").Start(ctx, name, trace.WithAttributes(attrs...))
    return ctx, Span{s: span}
}
