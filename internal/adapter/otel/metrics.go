package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "phaseline"

// Metrics holds all Phaseline metric instruments.
type Metrics struct {
	WorkflowsStarted    metric.Int64Counter
	WorkflowsCompleted  metric.Int64Counter
	WorkflowsFailed     metric.Int64Counter
	AnswersAccepted     metric.Int64Counter
	EscalationsOpened   metric.Int64Counter
	EscalationsResolved metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("phaseline.workflows.started",
		metric.WithDescription("Number of workflows started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("phaseline.workflows.completed",
		metric.WithDescription("Number of workflows completed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFailed, err = meter.Int64Counter("phaseline.workflows.failed",
		metric.WithDescription("Number of workflows failed"))
	if err != nil {
		return nil, err
	}

	m.AnswersAccepted, err = meter.Int64Counter("phaseline.answers.accepted",
		metric.WithDescription("Number of answers accepted without human review"))
	if err != nil {
		return nil, err
	}

	m.EscalationsOpened, err = meter.Int64Counter("phaseline.escalations.opened",
		metric.WithDescription("Number of escalations opened"))
	if err != nil {
		return nil, err
	}

	m.EscalationsResolved, err = meter.Int64Counter("phaseline.escalations.resolved",
		metric.WithDescription("Number of escalations resolved by a human"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("phaseline.dispatch.duration_seconds",
		metric.WithDescription("Responder dispatch duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
