package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	phaseotel "github.com/phaseline/phaseline/internal/adapter/otel"
	"github.com/phaseline/phaseline/internal/adapter/ws"
	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/routing"
	"github.com/phaseline/phaseline/internal/port/database"
	"github.com/phaseline/phaseline/internal/port/messagequeue"
)

// EscalationService manages the lifecycle of human-review escalations.
type EscalationService struct {
	db               database.Store
	hub              *ws.Hub
	queue            messagequeue.Queue
	metrics          *phaseotel.Metrics
	deadline         time.Duration
	maxReescalations int
	now              func() time.Time
}

// NewEscalationService creates an EscalationService. hub, queue, and metrics
// may be nil; deadline is the pending-escalation lifetime before lazy expiry.
func NewEscalationService(db database.Store, hub *ws.Hub, queue messagequeue.Queue, metrics *phaseotel.Metrics, deadline time.Duration, maxReescalations int) *EscalationService {
	return &EscalationService{
		db:               db,
		hub:              hub,
		queue:            queue,
		metrics:          metrics,
		deadline:         deadline,
		maxReescalations: maxReescalations,
		now:              time.Now,
	}
}

// Create opens a new pending escalation and notifies reviewers.
func (s *EscalationService) Create(ctx context.Context, e *escalation.Escalation) (*escalation.Escalation, error) {
	if e.SubjectID == "" || e.Topic == "" || e.Question == "" {
		return nil, fmt.Errorf("%w: subject_id, topic, and question are required", domain.ErrValidation)
	}

	created, err := s.db.CreateEscalation(ctx, e)
	if err != nil {
		return nil, err
	}

	slog.Info("escalation opened",
		"escalation_id", created.ID,
		"subject_id", created.SubjectID,
		"topic", created.Topic,
		"confidence", created.Confidence,
		"generation", created.Generation,
	)

	if s.metrics != nil {
		s.metrics.EscalationsOpened.Add(ctx, 1)
	}
	if s.hub != nil {
		s.hub.EscalationOpened(ctx, created)
	}
	s.publish(ctx, messagequeue.SubjectEscalationCreated, created)

	return created, nil
}

// Get returns an escalation, applying lazy deadline expiry first.
func (s *EscalationService) Get(ctx context.Context, id string) (*escalation.Escalation, error) {
	e, err := s.db.GetEscalation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.settleExpiry(ctx, e), nil
}

// ListPending returns escalations still awaiting review. Overdue rows are
// flipped to expired on the way through and excluded.
func (s *EscalationService) ListPending(ctx context.Context) ([]escalation.Escalation, error) {
	all, err := s.db.ListEscalationsByStatus(ctx, escalation.StatusPending)
	if err != nil {
		return nil, err
	}

	pending := make([]escalation.Escalation, 0, len(all))
	for i := range all {
		e := s.settleExpiry(ctx, &all[i])
		if e.Status == escalation.StatusPending {
			pending = append(pending, *e)
		}
	}
	return pending, nil
}

// settleExpiry persists overdue pending escalations as expired.
func (s *EscalationService) settleExpiry(ctx context.Context, e *escalation.Escalation) *escalation.Escalation {
	if !e.Overdue(s.now(), s.deadline) {
		return e
	}
	if err := s.db.MarkEscalationExpired(ctx, e.ID); err != nil {
		slog.Warn("persist escalation expiry failed", "escalation_id", e.ID, "error", err)
		return e
	}
	now := s.now()
	e.Status = escalation.StatusExpired
	e.ResolvedAt = &now
	return e
}

// Resolve applies a human action to a pending escalation. Escalations are
// single-use: the first resolution wins and later attempts fail with
// domain.ErrEscalationResolved. Expired escalations cannot be resolved.
func (s *EscalationService) Resolve(ctx context.Context, id string, req escalation.ResolveRequest) (*escalation.ResolutionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != escalation.StatusPending {
		return nil, fmt.Errorf("escalation %s is %s: %w", id, e.Status, domain.ErrEscalationResolved)
	}

	// add_context spawns another automated attempt. The chain is bounded:
	// once the budget is spent only confirm or correct can finish it.
	if req.Action == escalation.ActionAddContext && s.maxReescalations > 0 && e.Generation >= s.maxReescalations {
		return nil, fmt.Errorf("%w: escalation %s exhausted %d re-dispatches; confirm or correct instead",
			domain.ErrValidation, id, s.maxReescalations)
	}

	response := ""
	switch req.Action {
	case escalation.ActionCorrect:
		response = req.CorrectedAnswer
	case escalation.ActionAddContext:
		response = req.AdditionalContext
	}

	ctx, span := phaseotel.StartResolutionSpan(ctx, id, string(req.Action))
	defer span.End()

	resolved, err := s.db.ResolveEscalation(ctx, id, req.Action, req.Responder, response)
	if err != nil {
		return nil, err
	}

	result := &escalation.ResolutionResult{Escalation: resolved}
	switch req.Action {
	case escalation.ActionConfirm:
		result.Answer = resolved.TentativeAnswer
		result.Confidence = routing.FullConfidence
	case escalation.ActionCorrect:
		result.Answer = req.CorrectedAnswer
		result.Confidence = routing.FullConfidence
	case escalation.ActionAddContext:
		result.Redispatch = true
	}

	slog.Info("escalation resolved",
		"escalation_id", id,
		"action", req.Action,
		"responder", req.Responder,
		"redispatch", result.Redispatch,
	)

	if s.metrics != nil {
		s.metrics.EscalationsResolved.Add(ctx, 1)
	}
	if s.hub != nil {
		s.hub.EscalationSettled(ctx, resolved, result.Redispatch)
	}
	s.publish(ctx, messagequeue.SubjectEscalationResolved, resolved)

	return result, nil
}

// publish sends a fire-and-forget event; delivery failures are logged, never
// surfaced to the caller.
func (s *EscalationService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal escalation event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish escalation event failed", "subject", subject, "error", err)
	}
}
