// Package workflow defines the Workflow domain entity and its phase state machine.
package workflow

import (
	"encoding/json"
	"time"
)

// Status represents the current state of a workflow.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusWaitingApproval Status = "waiting_approval"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trigger identifies the event driving a transition.
type Trigger string

const (
	TriggerStart         Trigger = "start"
	TriggerAgentComplete Trigger = "agent_complete"
	TriggerError         Trigger = "error"
	TriggerHumanApproved Trigger = "human_approved"
	TriggerHumanRejected Trigger = "human_rejected"
)

// Workflow represents one multi-phase feature-development workflow.
// Mutated only through transition operations; terminal rows are never deleted.
type Workflow struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       Status          `json:"status"`
	SubjectID    string          `json:"subject_id"`
	CurrentPhase int             `json:"current_phase"` // 1-based index into the type's phase sequence
	PhaseName    string          `json:"phase_name"`
	Context      json.RawMessage `json:"context,omitempty"` // Opaque payload carried between phases
	Result       string          `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	ReworkCount  int             `json:"rework_count"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HistoryEntry is an immutable append-only record of one transition.
// Seq is a per-workflow monotonically increasing sequence assigned in the
// same commit as the status update.
type HistoryEntry struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Seq        int             `json:"seq"`
	FromStatus Status          `json:"from_status"`
	ToStatus   Status          `json:"to_status"`
	Trigger    Trigger         `json:"trigger"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateRequest holds the fields needed to create a new workflow.
type CreateRequest struct {
	Type      string          `json:"type"`
	SubjectID string          `json:"subject_id"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// AdvanceRequest is the request body for advancing a workflow.
type AdvanceRequest struct {
	Trigger     Trigger         `json:"trigger"`
	PhaseResult json.RawMessage `json:"phase_result,omitempty"`
}
