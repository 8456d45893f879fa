package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	phaseotel "github.com/phaseline/phaseline/internal/adapter/otel"
	"github.com/phaseline/phaseline/internal/adapter/ws"
	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/workflow"
	"github.com/phaseline/phaseline/internal/port/database"
	"github.com/phaseline/phaseline/internal/port/messagequeue"
	"github.com/phaseline/phaseline/internal/port/vcsprovider"
	"github.com/phaseline/phaseline/internal/port/workspace"
)

// transitionRetries bounds optimistic-concurrency retries before giving up.
const transitionRetries = 3

// TransitionedEvent is the payload published on workflows.transitioned.
type TransitionedEvent struct {
	WorkflowID string          `json:"workflow_id"`
	SubjectID  string          `json:"subject_id"`
	From       workflow.Status `json:"from"`
	To         workflow.Status `json:"to"`
	Trigger    workflow.Trigger `json:"trigger"`
	Phase      int             `json:"phase"`
	PhaseName  string          `json:"phase_name"`
}

// WorkflowService drives the phase state machine: creation, transitions,
// history, and the side effects at phase boundaries.
type WorkflowService struct {
	db           database.Store
	queue        messagequeue.Queue
	hub          *ws.Hub
	metrics      *phaseotel.Metrics
	exchange     *ExchangeService
	vcs          vcsprovider.Provider
	workspaces   workspace.Manager
	maxReworks   int
	replayWindow time.Duration
	now          func() time.Time
}

// NewWorkflowService creates a WorkflowService. queue, hub, metrics,
// exchange, vcs, and workspaces may all be nil; they are boundary
// collaborators, not requirements of the state machine. Without an exchange
// the service applies triggers but does not dispatch phase work itself.
func NewWorkflowService(db database.Store, queue messagequeue.Queue, hub *ws.Hub, metrics *phaseotel.Metrics, exchange *ExchangeService, vcs vcsprovider.Provider, workspaces workspace.Manager, maxReworks int, replayWindow time.Duration) *WorkflowService {
	return &WorkflowService{
		db:           db,
		queue:        queue,
		hub:          hub,
		metrics:      metrics,
		exchange:     exchange,
		vcs:          vcs,
		workspaces:   workspaces,
		maxReworks:   maxReworks,
		replayWindow: replayWindow,
		now:          time.Now,
	}
}

// Create persists a new pending workflow and provisions its collaborator
// resources. Collaborator failures are logged, never fatal: the workflow is
// the source of truth, the issue tracker a mirror.
func (s *WorkflowService) Create(ctx context.Context, req workflow.CreateRequest) (*workflow.Workflow, error) {
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", domain.ErrValidation)
	}

	w, err := s.db.CreateWorkflow(ctx, req)
	if err != nil {
		return nil, err
	}

	slog.Info("workflow created",
		"workflow_id", w.ID,
		"type", w.Type,
		"subject_id", w.SubjectID,
	)

	if s.metrics != nil {
		s.metrics.WorkflowsStarted.Add(ctx, 1)
	}
	if s.vcs != nil {
		if _, err := s.vcs.CreateIssue(ctx, w.SubjectID,
			fmt.Sprintf("%s workflow for %s", w.Type, w.SubjectID),
			fmt.Sprintf("Tracking workflow %s, starting at phase %q.", w.ID, w.PhaseName)); err != nil {
			slog.Warn("create tracking issue failed", "workflow_id", w.ID, "error", err)
		}
	}
	if s.workspaces != nil {
		if _, err := s.workspaces.CreateIsolatedWorkspace(ctx, w.SubjectID); err != nil {
			slog.Warn("provision workspace failed", "workflow_id", w.ID, "error", err)
		}
	}

	return w, nil
}

// Get returns a workflow by ID.
func (s *WorkflowService) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	return s.db.GetWorkflow(ctx, id)
}

// ListBySubject returns all workflows for a subject, newest first.
func (s *WorkflowService) ListBySubject(ctx context.Context, subjectID string) ([]workflow.Workflow, error) {
	return s.db.ListWorkflowsBySubject(ctx, subjectID)
}

// History returns the append-only transition log for a workflow.
func (s *WorkflowService) History(ctx context.Context, id string) ([]workflow.HistoryEntry, error) {
	if _, err := s.db.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return s.db.ListHistory(ctx, id)
}

// Start applies the start trigger to a pending workflow, which dispatches
// its first phase through the exchange pipeline.
func (s *WorkflowService) Start(ctx context.Context, id string) (*workflow.Workflow, error) {
	return s.Advance(ctx, id, workflow.AdvanceRequest{Trigger: workflow.TriggerStart})
}

// Advance applies one trigger to the workflow's state machine. Concurrent
// advances serialize on the version column; a lost race re-reads and retries.
// A trigger that exactly repeats the last applied transition within the
// replay window is treated as a delivery retry and acknowledged idempotently.
func (s *WorkflowService) Advance(ctx context.Context, id string, req workflow.AdvanceRequest) (*workflow.Workflow, error) {
	ctx, span := phaseotel.StartTransitionSpan(ctx, id, string(req.Trigger))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		w, err := s.db.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := workflow.Next(w, req.Trigger, s.maxReworks)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				if replayed := s.replayOf(ctx, w, req.Trigger); replayed {
					slog.Info("transition replay acknowledged",
						"workflow_id", id, "trigger", req.Trigger)
					return w, nil
				}
			}
			return nil, err
		}

		updated, err := s.db.TransitionWorkflow(ctx, database.TransitionRequest{
			WorkflowID:      id,
			ExpectedVersion: w.Version,
			To:              next.To,
			Phase:           next.NextPhase,
			PhaseName:       next.PhaseName,
			Trigger:         req.Trigger,
			Rework:          next.Rework,
			Result:          resultFor(next, req),
			Error:           errorFor(next, req),
			Metadata:        req.PhaseResult,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		s.afterTransition(ctx, w.Status, updated, req.Trigger, next)
		return s.runPhase(ctx, updated)
	}

	return nil, fmt.Errorf("advance workflow %s: retries exhausted: %w", id, lastErr)
}

// phaseOutcome is the history metadata recorded when the service itself
// dispatched the phase through the exchange pipeline.
type phaseOutcome struct {
	Phase      int    `json:"phase,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
	Error      string `json:"error,omitempty"`
}

// runPhase dispatches the work of the current phase when the workflow just
// entered in_progress. A confident answer feeds agent_complete back into the
// state machine; a low-confidence one parks the workflow on its escalation
// until a human weighs in; a dispatch failure applies the error trigger.
func (s *WorkflowService) runPhase(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	if s.exchange == nil || w.Status != workflow.StatusInProgress {
		return w, nil
	}

	phase, err := workflow.PhaseAt(w.Type, w.CurrentPhase)
	if err != nil {
		return nil, err
	}

	res, err := s.exchange.Ask(ctx, DispatchRequest{
		Topic:     phase.Topic,
		Question:  phaseQuestion(w, phase),
		Context:   string(w.Context),
		SubjectID: w.SubjectID,
	})
	if err != nil {
		slog.Error("phase dispatch failed",
			"workflow_id", w.ID,
			"phase", w.CurrentPhase,
			"topic", phase.Topic,
			"error", err,
		)
		outcome, _ := json.Marshal(phaseOutcome{Phase: w.CurrentPhase, Topic: phase.Topic, Error: err.Error()})
		return s.Advance(ctx, w.ID, workflow.AdvanceRequest{Trigger: workflow.TriggerError, PhaseResult: outcome})
	}

	if res.Escalated {
		slog.Info("phase parked on escalation",
			"workflow_id", w.ID,
			"phase", w.CurrentPhase,
			"escalation_id", res.EscalationID,
		)
		return w, nil
	}

	outcome, err := json.Marshal(phaseOutcome{
		Phase:      w.CurrentPhase,
		Topic:      phase.Topic,
		Answer:     res.Answer,
		Confidence: res.Confidence,
	})
	if err != nil {
		return nil, err
	}
	return s.Advance(ctx, w.ID, workflow.AdvanceRequest{Trigger: workflow.TriggerAgentComplete, PhaseResult: outcome})
}

// phaseQuestion frames a phase's deliverable as the question put to its
// topic's responder.
func phaseQuestion(w *workflow.Workflow, p workflow.Phase) string {
	return fmt.Sprintf("Produce the %s deliverable for %s.", p.Name, w.SubjectID)
}

// replayOf reports whether trigger repeats the workflow's last applied
// transition recently enough to be a duplicate delivery rather than a
// genuine illegal trigger.
func (s *WorkflowService) replayOf(ctx context.Context, w *workflow.Workflow, trigger workflow.Trigger) bool {
	last, err := s.db.LastHistoryEntry(ctx, w.ID)
	if err != nil {
		slog.Warn("replay check failed", "workflow_id", w.ID, "error", err)
		return false
	}
	if last == nil {
		return false
	}
	return last.Trigger == trigger &&
		last.ToStatus == w.Status &&
		s.now().Sub(last.CreatedAt) <= s.replayWindow
}

// afterTransition fires the side effects of a committed transition: queue
// event, reviewer notification at approval gates, metrics, and the VCS
// mirror. All best-effort.
func (s *WorkflowService) afterTransition(ctx context.Context, from workflow.Status, w *workflow.Workflow, trigger workflow.Trigger, t workflow.Transition) {
	slog.Info("workflow transitioned",
		"workflow_id", w.ID,
		"from", from,
		"to", w.Status,
		"trigger", trigger,
		"phase", w.CurrentPhase,
		"phase_name", w.PhaseName,
		"rework_count", w.ReworkCount,
	)

	if s.metrics != nil {
		switch w.Status {
		case workflow.StatusCompleted:
			s.metrics.WorkflowsCompleted.Add(ctx, 1)
		case workflow.StatusFailed:
			s.metrics.WorkflowsFailed.Add(ctx, 1)
		}
	}

	if s.queue != nil {
		data, err := json.Marshal(TransitionedEvent{
			WorkflowID: w.ID,
			SubjectID:  w.SubjectID,
			From:       from,
			To:         w.Status,
			Trigger:    trigger,
			Phase:      w.CurrentPhase,
			PhaseName:  w.PhaseName,
		})
		if err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectWorkflowTransitioned, data); err != nil {
				slog.Warn("publish transition event failed", "workflow_id", w.ID, "error", err)
			}
		}
	}

	if s.hub != nil && (w.Status == workflow.StatusWaitingApproval || w.Status.Terminal()) {
		s.hub.WorkflowGate(ctx, w)
	}

	if s.vcs != nil {
		body := fmt.Sprintf("Workflow %s moved to %s (phase %q, trigger %s).", w.ID, w.Status, w.PhaseName, trigger)
		if t.Exhausted {
			body = fmt.Sprintf("Workflow %s failed: rework budget exhausted after %d rejections.", w.ID, w.ReworkCount)
		}
		if err := s.vcs.Comment(ctx, w.SubjectID, body); err != nil {
			slog.Debug("mirror transition comment failed", "workflow_id", w.ID, "error", err)
		}
		if w.Status == workflow.StatusCompleted {
			if err := s.vcs.Label(ctx, w.SubjectID, "completed"); err != nil {
				slog.Debug("label tracking issue failed", "workflow_id", w.ID, "error", err)
			}
		}
	}

	if s.workspaces != nil && w.Status.Terminal() {
		if err := s.workspaces.Remove(ctx, w.SubjectID); err != nil {
			slog.Debug("remove workspace failed", "workflow_id", w.ID, "error", err)
		}
	}
}

// resultFor picks the stored result text for a transition.
func resultFor(t workflow.Transition, req workflow.AdvanceRequest) string {
	if t.To == workflow.StatusCompleted && len(req.PhaseResult) > 0 {
		return string(req.PhaseResult)
	}
	return ""
}

// errorFor picks the stored error text for a transition.
func errorFor(t workflow.Transition, req workflow.AdvanceRequest) string {
	if t.To != workflow.StatusFailed {
		return ""
	}
	if t.Exhausted {
		return "rework budget exhausted"
	}
	if len(req.PhaseResult) > 0 {
		var out phaseOutcome
		if err := json.Unmarshal(req.PhaseResult, &out); err == nil && out.Error != "" {
			return out.Error
		}
		return string(req.PhaseResult)
	}
	return "phase error"
}
