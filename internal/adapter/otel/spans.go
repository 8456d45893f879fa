package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "phaseline"

// StartDispatchSpan starts a span for one responder dispatch.
func StartDispatchSpan(ctx context.Context, topic, correlationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.topic", topic),
			attribute.String("dispatch.correlation_id", correlationID),
		),
	)
}

// StartTransitionSpan starts a span for a workflow transition.
func StartTransitionSpan(ctx context.Context, workflowID, trigger string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.trigger", trigger),
		),
	)
}

// StartResolutionSpan starts a span for a human escalation resolution.
func StartResolutionSpan(ctx context.Context, escalationID, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "resolution",
		trace.WithAttributes(
			attribute.String("escalation.id", escalationID),
			attribute.String("escalation.action", action),
		),
	)
}
