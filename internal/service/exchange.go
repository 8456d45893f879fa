package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	phaseotel "github.com/phaseline/phaseline/internal/adapter/otel"
	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/audit"
	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/routing"
	"github.com/phaseline/phaseline/internal/port/auditlog"
)

// Exchange statuses reported to callers.
const (
	ExchangeAccepted  = "accepted"
	ExchangeEscalated = "escalated"
)

// ExchangeResult is the outcome of asking a question through the confidence
// gate. An accepted answer is final; an escalated one is tentative, with a
// pending escalation holding it for human review.
type ExchangeResult struct {
	Answer       string `json:"answer,omitempty"`
	Confidence   int    `json:"confidence,omitempty"`
	Status       string `json:"status"`
	SessionID    string `json:"session_id,omitempty"`
	Escalated    bool   `json:"-"`
	EscalationID string `json:"escalation_id,omitempty"`
}

// ExchangeService runs the full question pipeline: dispatch, confidence
// validation, escalation on low trust, and the audit trail for every
// finalized answer.
type ExchangeService struct {
	router           *RouterService
	escalations      *EscalationService
	audit            auditlog.Log
	metrics          *phaseotel.Metrics
	defaultThreshold int
}

// NewExchangeService creates an ExchangeService. metrics may be nil.
func NewExchangeService(router *RouterService, escalations *EscalationService, auditLog auditlog.Log, metrics *phaseotel.Metrics, defaultThreshold int) *ExchangeService {
	return &ExchangeService{
		router:           router,
		escalations:      escalations,
		audit:            auditLog,
		metrics:          metrics,
		defaultThreshold: defaultThreshold,
	}
}

// Ask dispatches a question and gates the answer on its confidence score.
// Confident answers are final and audited immediately; the rest open an
// escalation and wait for a human.
func (s *ExchangeService) Ask(ctx context.Context, req DispatchRequest) (*ExchangeResult, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", domain.ErrValidation)
	}

	start := time.Now()
	answer, err := s.router.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	threshold := s.router.Threshold(req.Topic, s.defaultThreshold)
	if routing.Validate(answer.Confidence, threshold) == routing.OutcomeAccepted {
		if s.metrics != nil {
			s.metrics.AnswersAccepted.Add(ctx, 1)
		}
		s.record(ctx, &audit.Entry{
			SessionID:  req.SessionID,
			SubjectID:  req.SubjectID,
			Topic:      req.Topic,
			Question:   req.Question,
			Answer:     answer.Answer,
			Confidence: answer.Confidence,
			Status:     audit.StatusAccepted,
			Duration:   time.Since(start),
		})
		return &ExchangeResult{
			Answer:     answer.Answer,
			Confidence: answer.Confidence,
			Status:     ExchangeAccepted,
			SessionID:  req.SessionID,
		}, nil
	}

	esc, err := s.escalations.Create(ctx, &escalation.Escalation{
		SessionID:          req.SessionID,
		SubjectID:          req.SubjectID,
		Topic:              req.Topic,
		Question:           req.Question,
		TentativeAnswer:    answer.Answer,
		Confidence:         answer.Confidence,
		UncertaintyReasons: answer.UncertaintyReasons,
		ResponderID:        answer.ResponderID,
	})
	if err != nil {
		return nil, fmt.Errorf("open escalation: %w", err)
	}

	return &ExchangeResult{
		Answer:       answer.Answer,
		Confidence:   answer.Confidence,
		Status:       ExchangeEscalated,
		SessionID:    req.SessionID,
		Escalated:    true,
		EscalationID: esc.ID,
	}, nil
}

// ResolveEscalation applies a human action to an escalation and finishes the
// exchange. confirm and correct finalize the answer; add_context re-dispatches
// the question with the extra context, which either finalizes on a confident
// answer or opens the next-generation escalation.
func (s *ExchangeService) ResolveEscalation(ctx context.Context, id string, req escalation.ResolveRequest) (*ExchangeResult, error) {
	res, err := s.escalations.Resolve(ctx, id, req)
	if err != nil {
		return nil, err
	}

	e := res.Escalation
	if !res.Redispatch {
		s.record(ctx, &audit.Entry{
			SessionID:    e.SessionID,
			SubjectID:    e.SubjectID,
			Topic:        e.Topic,
			Question:     e.Question,
			Answer:       res.Answer,
			Confidence:   res.Confidence,
			Status:       audit.StatusResolved,
			EscalationID: e.ID,
		})
		return &ExchangeResult{
			Answer:     res.Answer,
			Confidence: res.Confidence,
			Status:     ExchangeAccepted,
			SessionID:  e.SessionID,
		}, nil
	}

	return s.redispatch(ctx, e, req.AdditionalContext)
}

// redispatch re-routes the escalated question with the human's additional
// context. A still-low-confidence answer opens the next-generation
// escalation rather than looping silently.
func (s *ExchangeService) redispatch(ctx context.Context, e *escalation.Escalation, additionalContext string) (*ExchangeResult, error) {
	start := time.Now()
	answer, err := s.router.Dispatch(ctx, DispatchRequest{
		Topic:     e.Topic,
		Question:  e.Question,
		Context:   additionalContext,
		SessionID: e.SessionID,
		SubjectID: e.SubjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("re-dispatch escalation %s: %w", e.ID, err)
	}

	threshold := s.router.Threshold(e.Topic, s.defaultThreshold)
	if routing.Validate(answer.Confidence, threshold) == routing.OutcomeAccepted {
		if s.metrics != nil {
			s.metrics.AnswersAccepted.Add(ctx, 1)
		}
		s.record(ctx, &audit.Entry{
			SessionID:    e.SessionID,
			SubjectID:    e.SubjectID,
			Topic:        e.Topic,
			Question:     e.Question,
			Answer:       answer.Answer,
			Confidence:   answer.Confidence,
			Status:       audit.StatusAccepted,
			EscalationID: e.ID,
			Duration:     time.Since(start),
		})
		return &ExchangeResult{
			Answer:     answer.Answer,
			Confidence: answer.Confidence,
			Status:     ExchangeAccepted,
			SessionID:  e.SessionID,
		}, nil
	}

	next, err := s.escalations.Create(ctx, &escalation.Escalation{
		SessionID:          e.SessionID,
		SubjectID:          e.SubjectID,
		Topic:              e.Topic,
		Question:           e.Question,
		TentativeAnswer:    answer.Answer,
		Confidence:         answer.Confidence,
		UncertaintyReasons: answer.UncertaintyReasons,
		ResponderID:        answer.ResponderID,
		Generation:         e.Generation + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open next-generation escalation: %w", err)
	}

	return &ExchangeResult{
		Answer:       answer.Answer,
		Confidence:   answer.Confidence,
		Status:       ExchangeEscalated,
		SessionID:    e.SessionID,
		Escalated:    true,
		EscalationID: next.ID,
	}, nil
}

// AuditBySubject streams the audit trail for a subject.
func (s *ExchangeService) AuditBySubject(ctx context.Context, subjectID string) iter.Seq2[audit.Entry, error] {
	return s.audit.QueryBySubject(ctx, subjectID)
}

// record appends to the audit trail. The trail is best-effort relative to
// the answer itself: a failed write is logged loudly but does not retract
// an already-finalized answer.
func (s *ExchangeService) record(ctx context.Context, entry *audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		slog.Error("audit record failed",
			"subject_id", entry.SubjectID,
			"topic", entry.Topic,
			"status", entry.Status,
			"error", err,
		)
	}
}
