package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/workflow"
)

// Event type constants for WebSocket messages.
const (
	EventEscalationCreated  = "escalation.created"
	EventEscalationResolved = "escalation.resolved"
	EventWorkflowGate       = "workflow.gate"
)

// EscalationCreatedEvent is broadcast when a low-confidence answer opens a
// new escalation for human review.
type EscalationCreatedEvent struct {
	EscalationID string `json:"escalation_id"`
	SubjectID    string `json:"subject_id"`
	Topic        string `json:"topic"`
	Question     string `json:"question"`
	Confidence   int    `json:"confidence"`
	Generation   int    `json:"generation"`
}

// EscalationResolvedEvent is broadcast when a human resolves an escalation.
type EscalationResolvedEvent struct {
	EscalationID string `json:"escalation_id"`
	SubjectID    string `json:"subject_id"`
	Action       string `json:"action"`
	Redispatch   bool   `json:"redispatch"`
}

// WorkflowGateEvent is broadcast when a workflow reaches an approval gate
// or leaves one.
type WorkflowGateEvent struct {
	WorkflowID string `json:"workflow_id"`
	SubjectID  string `json:"subject_id"`
	Status     string `json:"status"`
	PhaseName  string `json:"phase_name"`
}

// EscalationOpened broadcasts escalation.created for a newly opened
// escalation.
func (h *Hub) EscalationOpened(ctx context.Context, e *escalation.Escalation) {
	h.BroadcastEvent(ctx, EventEscalationCreated, EscalationCreatedEvent{
		EscalationID: e.ID,
		SubjectID:    e.SubjectID,
		Topic:        e.Topic,
		Question:     e.Question,
		Confidence:   e.Confidence,
		Generation:   e.Generation,
	})
}

// EscalationSettled broadcasts escalation.resolved after a human action.
func (h *Hub) EscalationSettled(ctx context.Context, e *escalation.Escalation, redispatch bool) {
	h.BroadcastEvent(ctx, EventEscalationResolved, EscalationResolvedEvent{
		EscalationID: e.ID,
		SubjectID:    e.SubjectID,
		Action:       string(e.HumanAction),
		Redispatch:   redispatch,
	})
}

// WorkflowGate broadcasts workflow.gate when a workflow reaches an approval
// gate or a terminal status.
func (h *Hub) WorkflowGate(ctx context.Context, w *workflow.Workflow) {
	h.BroadcastEvent(ctx, EventWorkflowGate, WorkflowGateEvent{
		WorkflowID: w.ID,
		SubjectID:  w.SubjectID,
		Status:     string(w.Status),
		PhaseName:  w.PhaseName,
	})
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
