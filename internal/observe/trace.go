package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for all Sightline spans.
const tracerName = "github.com/halcyoncraft/sightline"

// Tracer returns the Sightline tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TurnSpan starts the root span for one voice turn. Every stage span of the
// turn hangs off it, so a trace view shows where the turn budget went.
func TurnSpan(ctx context.Context, turnID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "voice.turn",
		trace.WithAttributes(attribute.String("sightline.turn_id", turnID)),
	)
}

// StageSpan starts a child span for one pipeline stage of a turn
// ("stt", "llm", "tts").
func StageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return StartSpan(ctx, "voice.turn."+stage,
		trace.WithAttributes(attribute.String("sightline.stage", stage)),
	)
}

// CorrelationID returns the trace ID of the active span in ctx, or the empty
// string when there is none. The trace ID doubles as the correlation
// identifier exposed to HTTP clients.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] carrying trace_id and span_id from the
// active span in ctx. Without an active span it is the default logger
// unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
