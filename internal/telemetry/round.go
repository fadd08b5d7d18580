// Package telemetry wraps an OpenTelemetry span with a small step-tracing
// helper: one parent span per round, and a child span per named phase
// inside it. No other package in this module imports it; the router and
// the keeper run without these spans.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	RoundEventName  = "tribfs.round"
	RoundVersion    = "1"
	roundVersionKey = "tribfs.round.version"
	roundJSONKey    = "tribfs.round.json"
	defaultRoundID  = "round"
)

// Phase is one named step of a round, optionally nested under a parent
// phase (ParentID names another phase of the same round).
type Phase struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Title    string `json:"title"`
}

// Round describes the phases a single operation expects to run, recorded
// up front as a span attribute/event so a trace shows what was planned
// even if the operation aborts partway through.
type Round struct {
	Phases []Phase `json:"phases"`
}

// Operation is an in-flight round: a parent span plus the tracer used to
// start child spans for each phase.
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// StartRound opens the parent span for name (e.g. "keeper.round",
// "router.write") and records round as both a span attribute and a
// span event, so a trace viewer shows the planned phase shape.
func StartRound(ctx context.Context, tracer trace.Tracer, name string, round Round) (*Operation, error) {
	if tracer == nil {
		return nil, fmt.Errorf("start telemetry round: tracer is required")
	}
	if err := validateRound(round); err != nil {
		return nil, fmt.Errorf("start telemetry round: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultRoundID
	}

	roundJSON, err := json.Marshal(round)
	if err != nil {
		return nil, fmt.Errorf("start telemetry round: marshal round: %w", err)
	}

	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(roundVersionKey, RoundVersion),
		attribute.String(roundJSONKey, string(roundJSON)),
	))
	span.AddEvent(RoundEventName, trace.WithAttributes(
		attribute.String(roundVersionKey, RoundVersion),
		attribute.String(roundJSONKey, string(roundJSON)),
	))

	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, nil
}

// Context returns the round's span-bearing context, or a background
// context for a nil Operation so callers never need a nil check.
func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// RunPhase runs fn inside a child span named id. A nil Operation (e.g.
// telemetry disabled) just runs fn directly against ctx.
func (o *Operation) RunPhase(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}

	phaseID := strings.TrimSpace(id)
	if phaseID == "" {
		return fmt.Errorf("run telemetry phase: phase id is required")
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}

	if ctx == nil {
		ctx = o.ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}

	phaseCtx, span := o.tracer.Start(ctx, phaseID)
	defer span.End()

	if err := fn(phaseCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// End closes the round's parent span, recording err if non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}

func validateRound(round Round) error {
	indexByID := make(map[string]struct{}, len(round.Phases))
	for i, phase := range round.Phases {
		id := strings.TrimSpace(phase.ID)
		if id == "" {
			return fmt.Errorf("phase %d has empty id", i)
		}
		if _, exists := indexByID[id]; exists {
			return fmt.Errorf("duplicate phase id %q", id)
		}
		indexByID[id] = struct{}{}
	}
	for i, phase := range round.Phases {
		parentID := strings.TrimSpace(phase.ParentID)
		if parentID == "" {
			continue
		}
		if _, exists := indexByID[parentID]; !exists {
			return fmt.Errorf("phase %d parent %q not found in round", i, parentID)
		}
	}
	return nil
}
