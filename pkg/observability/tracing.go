// Package observability provides OpenTelemetry tracing for fls sessions.
//
// Without Init every span is a no-op, so library users pay nothing unless
// they install a tracer provider (the CLI does so for --trace).
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies fls spans.
const TracerName = "github.com/ajitpratap0/fls"

// Tracer returns the fls tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Span wraps a stage span.
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// StartStage starts a span named "fls.<stage>" tagged with the session and
// engine.
func StartStage(ctx context.Context, stage, sessionID, engine string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := Tracer().Start(ctx, "fls."+stage,
		trace.WithAttributes(
			attribute.String("fls.stage", stage),
			attribute.String("fls.session_id", sessionID),
			attribute.String("fls.engine", engine),
		))
	return ctx, &Span{span: span}
}

// SetAttribute buffers an attribute until End.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.attributes = append(s.attributes, attr)
}

// AddEvent records a named event.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End flushes buffered attributes, sets the status from err and ends the
// span.
func (s *Span) End(err error) {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
