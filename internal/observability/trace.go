package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceObserver records events on the OpenTelemetry span carried by the
// context. Error-level events mark the span as failed.
type TraceObserver struct{}

func (TraceObserver) OnEvent(ctx context.Context, event Event) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(event.Data)+2)
	attrs = append(attrs,
		attribute.String("event.source", event.Source),
		attribute.String("event.severity", event.Level.String()),
	)
	for _, k := range sortedKeys(event.Data) {
		attrs = append(attrs, toAttribute(k, event.Data[k]))
	}

	opts := []trace.EventOption{trace.WithAttributes(attrs...)}
	if !event.Timestamp.IsZero() {
		opts = append(opts, trace.WithTimestamp(event.Timestamp))
	}
	span.AddEvent(string(event.Type), opts...)

	if event.Level >= LevelError {
		msg := string(event.Type)
		if err, ok := event.Data["error"]; ok {
			msg = fmt.Sprint(err)
		}
		span.SetStatus(codes.Error, msg)
	}
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case fmt.Stringer:
		return attribute.String(key, val.String())
	case error:
		return attribute.String(key, val.Error())
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}
