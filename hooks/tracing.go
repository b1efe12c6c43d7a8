package hooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook opens one client span per statement.
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook returns a hook that traces with tracer. A nil tracer disables it.
func NewTracingHook(tracer trace.Tracer) *TracingHook {
	return &TracingHook{tracer: tracer}
}

type spanKey struct{}

func statementAttributes(query string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", OperationType(query)),
		attribute.String("db.statement", Preview(query, PreviewLength)),
	}
	if table := TableName(query); table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	return attrs
}

func (h *TracingHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	if h.tracer == nil {
		return ctx
	}
	ctx, span := h.tracer.Start(ctx, "db."+OperationType(event.Query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(event.StartTime),
		trace.WithAttributes(statementAttributes(event.Query)...),
	)
	return context.WithValue(ctx, spanKey{}, span)
}

func (h *TracingHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	span, ok := ctx.Value(spanKey{}).(trace.Span)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("db.rows", event.Rows))
	if event.Err != nil {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
	}
	span.End()
}
