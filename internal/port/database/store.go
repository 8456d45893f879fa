// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/session"
	"github.com/phaseline/phaseline/internal/domain/workflow"
)

// TransitionRequest describes one atomic workflow transition. The status
// update and the history row commit together; ExpectedVersion guards against
// concurrent writers.
type TransitionRequest struct {
	WorkflowID      string
	ExpectedVersion int
	To              workflow.Status
	Phase           int
	PhaseName       string
	Trigger         workflow.Trigger
	Rework          bool // increment the rework counter
	Result          string
	Error           string
	Metadata        json.RawMessage
}

// Store is the port interface for database operations.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (*workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	ListWorkflowsBySubject(ctx context.Context, subjectID string) ([]workflow.Workflow, error)
	// TransitionWorkflow commits the status change and its history row in one
	// transaction. Returns domain.ErrConflict when ExpectedVersion is stale.
	TransitionWorkflow(ctx context.Context, req TransitionRequest) (*workflow.Workflow, error)
	ListHistory(ctx context.Context, workflowID string) ([]workflow.HistoryEntry, error)
	LastHistoryEntry(ctx context.Context, workflowID string) (*workflow.HistoryEntry, error)

	// Sessions
	CreateSession(ctx context.Context, req session.CreateRequest, ttl time.Duration) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	// AppendMessage inserts a message and bumps the session's last_activity
	// in the same transaction.
	AppendMessage(ctx context.Context, m *session.Message) (*session.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)
	CloseSession(ctx context.Context, id string) error
	// MarkSessionExpired persists the lazily computed expired status.
	MarkSessionExpired(ctx context.Context, id string) error

	// Escalations
	CreateEscalation(ctx context.Context, e *escalation.Escalation) (*escalation.Escalation, error)
	GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error)
	ListEscalationsByStatus(ctx context.Context, status escalation.Status) ([]escalation.Escalation, error)
	// ResolveEscalation flips pending to resolved exactly once; returns
	// domain.ErrEscalationResolved when the row is no longer pending.
	ResolveEscalation(ctx context.Context, id string, action escalation.Action, responder, response string) (*escalation.Escalation, error)
	// MarkEscalationExpired persists lazy expiry; a no-op if no longer pending.
	MarkEscalationExpired(ctx context.Context, id string) error
}
