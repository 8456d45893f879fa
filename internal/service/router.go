package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	phaseotel "github.com/phaseline/phaseline/internal/adapter/otel"
	"github.com/phaseline/phaseline/internal/domain/routing"
	"github.com/phaseline/phaseline/internal/domain/session"
	"github.com/phaseline/phaseline/internal/port/responder"
)

// DispatchRequest is one question bound for an automated responder.
type DispatchRequest struct {
	Topic     string `json:"topic"`
	Question  string `json:"question"`
	Context   string `json:"context,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	SubjectID string `json:"subject_id"`
}

// RouterService resolves topics to responder endpoints and dispatches
// questions to them. Concurrent dispatches are bounded by a weighted
// semaphore so a burst of questions cannot exhaust responder capacity.
type RouterService struct {
	table    *routing.Table
	client   responder.Client
	sessions *SessionService
	sem      *semaphore.Weighted
	timeout  time.Duration
	metrics  *phaseotel.Metrics
}

// NewRouterService creates a RouterService. maxConcurrent bounds in-flight
// dispatches; timeout is the default per-dispatch deadline, overridable per
// route. metrics may be nil.
func NewRouterService(table *routing.Table, client responder.Client, sessions *SessionService, maxConcurrent int64, timeout time.Duration, metrics *phaseotel.Metrics) *RouterService {
	return &RouterService{
		table:    table,
		client:   client,
		sessions: sessions,
		sem:      semaphore.NewWeighted(maxConcurrent),
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Topics returns the configured topics, for discovery endpoints.
func (s *RouterService) Topics() []string {
	return s.table.Topics()
}

// Threshold returns the effective confidence threshold for a topic.
func (s *RouterService) Threshold(topic string, defaultThreshold int) int {
	return s.table.Threshold(topic, defaultThreshold)
}

// Dispatch routes one question to its topic's responder and returns the
// structured answer. When the request names a session, the question and the
// answer are appended to it so later turns carry the history.
func (s *RouterService) Dispatch(ctx context.Context, req DispatchRequest) (*responder.Answer, error) {
	route, err := s.table.Resolve(req.Topic)
	if err != nil {
		return nil, err
	}

	var history []session.Message
	if req.SessionID != "" {
		history, err = s.sessions.History(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire dispatch slot: %w", err)
	}
	defer s.sem.Release(1)

	timeout := s.timeout
	if route.Timeout > 0 {
		timeout = route.Timeout
	}

	correlationID := uuid.NewString()
	ctx, span := phaseotel.StartDispatchSpan(ctx, req.Topic, correlationID)
	defer span.End()

	start := time.Now()
	answer, err := s.client.Ask(ctx, route.Endpoint, responder.Request{
		CorrelationID: correlationID,
		Topic:         req.Topic,
		Question:      req.Question,
		Context:       req.Context,
		Model:         route.Model,
		History:       history,
	}, timeout)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.DispatchDuration.Record(ctx, elapsed.Seconds())
	}

	if err != nil {
		slog.Warn("dispatch failed",
			"topic", req.Topic,
			"correlation_id", correlationID,
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	slog.Info("dispatch answered",
		"topic", req.Topic,
		"correlation_id", correlationID,
		"responder_id", answer.ResponderID,
		"confidence", answer.Confidence,
		"elapsed", elapsed,
	)

	if req.SessionID != "" {
		if _, err := s.sessions.AppendMessage(ctx, req.SessionID, session.RoleAsker, req.Question, nil); err != nil {
			return nil, fmt.Errorf("append question to session: %w", err)
		}
		if _, err := s.sessions.AppendMessage(ctx, req.SessionID, session.RoleResponder, answer.Answer, nil); err != nil {
			return nil, fmt.Errorf("append answer to session: %w", err)
		}
	}

	return answer, nil
}
