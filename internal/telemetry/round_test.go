package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestStartRoundAndRunPhaseSuccess(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := StartRound(context.Background(), tracer, "keeper.round", Round{Phases: []Phase{
		{ID: "probe", Title: "probing replicas"},
		{ID: "replicate", ParentID: "probe", Title: "replicating owned keys"},
	}})
	if err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}

	if err := op.RunPhase(op.Context(), "probe", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunPhase() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}

	root := findSpanByName(spans, "keeper.round")
	if root == nil {
		t.Fatal("missing root span")
	}
	if len(root.Events()) == 0 {
		t.Fatal("expected root round event")
	}
	roundEvent := root.Events()[0]
	if roundEvent.Name != RoundEventName {
		t.Fatalf("round event name = %q, want %q", roundEvent.Name, RoundEventName)
	}
	if getAttr(roundEvent.Attributes, roundVersionKey) != RoundVersion {
		t.Fatalf("round event version = %q, want %q", getAttr(roundEvent.Attributes, roundVersionKey), RoundVersion)
	}

	child := findSpanByName(spans, "probe")
	if child == nil {
		t.Fatal("missing child phase span")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatalf("phase parent span id = %s, want %s", child.Parent().SpanID(), root.SpanContext().SpanID())
	}
}

func TestRunPhaseFailureSetsErrorStatus(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := StartRound(context.Background(), tracer, "router.write", Round{Phases: []Phase{{ID: "append_backup", Title: "append backup"}}})
	if err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}

	boom := errors.New("boom")
	err = op.RunPhase(op.Context(), "append_backup", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunPhase() error = %v, want boom", err)
	}
	op.End(err)

	spans := recorder.Ended()
	child := findSpanByName(spans, "append_backup")
	if child == nil {
		t.Fatal("missing failed phase span")
	}
	if child.Status().Code != codes.Error {
		t.Fatalf("phase status code = %v, want %v", child.Status().Code, codes.Error)
	}
	if child.Status().Description != "boom" {
		t.Fatalf("phase status description = %q, want boom", child.Status().Description)
	}
}

func TestStartRoundValidationFailure(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	_, err := StartRound(context.Background(), tracer, "keeper.round", Round{Phases: []Phase{
		{ID: "probe", Title: "probing"},
		{ID: "probe", Title: "duplicated"},
	}})
	if err == nil {
		t.Fatal("StartRound() error = nil, want duplicate id error")
	}
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func getAttr(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
