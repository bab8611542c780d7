// Package otel bridges the observe.Sink to OpenTelemetry tracing so
// thread syncs, run originations, and stream sessions are visible in
// any OTel-compatible backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/carebridgehq/assistant-sync-go/observe"
)

const instrumentationName = "github.com/carebridgehq/assistant-sync-go"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider. A nil
// provider falls back to a noop tracer.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	_, span := s.tracer.Start(context.Background(), spanNameFor(event), trace.WithTimestamp(event.Timestamp))

	attrs := []attribute.KeyValue{
		attribute.String("assistsync.event.kind", string(event.Kind)),
	}
	if event.ThreadID != "" {
		attrs = append(attrs, attribute.String("assistsync.thread.id", event.ThreadID))
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("assistsync.run.id", event.RunID))
	}
	if event.UserID != "" {
		attrs = append(attrs, attribute.String("assistsync.user.id", event.UserID))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("assistsync.event.name", event.Name))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("assistsync.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("assistsync.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("assistsync.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("assistsync.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	case observe.StatusCompleted:
		span.SetStatus(codes.Ok, "")
	}

	endTime := event.Timestamp
	if event.DurationMs > 0 {
		endTime = endTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindThread:
		return "assistsync.thread"
	case observe.KindRun:
		return "assistsync.run"
	case observe.KindStream:
		return "assistsync.stream"
	case observe.KindSync:
		return "assistsync.sync"
	default:
		if event.Name != "" {
			return "assistsync." + event.Name
		}
		return "assistsync.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
