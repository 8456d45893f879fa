package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phaseline/phaseline/internal/config"
	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/routing"
	"github.com/phaseline/phaseline/internal/domain/session"
	"github.com/phaseline/phaseline/internal/port/responder"
)

func newTestTable(t *testing.T) *routing.Table {
	t.Helper()
	table, err := routing.NewTable([]config.RouteSpec{
		{Topic: "architecture", Endpoint: "http://architect.local/ask", Threshold: 90},
		{Topic: "planning", Endpoint: "http://planner.local/ask"},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func newTestRouter(t *testing.T, store *mockStore, client responder.Client) *RouterService {
	t.Helper()
	sessions := newTestSessions(store, time.Hour)
	return NewRouterService(newTestTable(t), client, sessions, 4, time.Minute, nil)
}

func TestDispatchUnknownTopic(t *testing.T) {
	svc := newTestRouter(t, newMockStore(), &mockResponder{})

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		Topic:     "databases",
		Question:  "q",
		SubjectID: "s1",
	})
	if !errors.Is(err, domain.ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}

	var ute *routing.UnknownTopicError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTopicError, got %T", err)
	}
	if len(ute.Available) != 2 {
		t.Fatalf("expected 2 available topics, got %v", ute.Available)
	}
}

func TestDispatchReturnsAnswer(t *testing.T) {
	client := &mockResponder{answers: []responder.Answer{
		{Answer: "use postgres", Confidence: 88, ResponderID: "arch-1"},
	}}
	svc := newTestRouter(t, newMockStore(), client)

	ans, err := svc.Dispatch(context.Background(), DispatchRequest{
		Topic:     "architecture",
		Question:  "which db",
		SubjectID: "s1",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ans.Answer != "use postgres" || ans.Confidence != 88 {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}
	if client.calls[0].CorrelationID == "" {
		t.Fatal("expected correlation ID on the wire")
	}
}

func TestDispatchAppendsSessionTurns(t *testing.T) {
	store := newMockStore()
	client := &mockResponder{answers: []responder.Answer{
		{Answer: "split into three tasks", Confidence: 95},
		{Answer: "keep task two small", Confidence: 95},
	}}
	svc := newTestRouter(t, store, client)
	ctx := context.Background()

	sess, _ := svc.sessions.Create(ctx, session.CreateRequest{ResponderRole: "planner", SubjectID: "s1"})

	if _, err := svc.Dispatch(ctx, DispatchRequest{
		Topic:     "planning",
		Question:  "how to split",
		SessionID: sess.ID,
		SubjectID: "s1",
	}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}

	if _, err := svc.Dispatch(ctx, DispatchRequest{
		Topic:     "planning",
		Question:  "anything to watch",
		SessionID: sess.ID,
		SubjectID: "s1",
	}); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}

	// Second call must carry the first exchange as history.
	if len(client.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(client.calls))
	}
	if len(client.calls[0].History) != 0 {
		t.Fatalf("expected empty history on first call, got %d", len(client.calls[0].History))
	}
	if len(client.calls[1].History) != 2 {
		t.Fatalf("expected 2 history messages on second call, got %d", len(client.calls[1].History))
	}

	msgs, _ := svc.sessions.History(ctx, sess.ID)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages in session, got %d", len(msgs))
	}
	if msgs[0].Role != session.RoleAsker || msgs[1].Role != session.RoleResponder {
		t.Fatalf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestDispatchPropagatesResponderError(t *testing.T) {
	client := &mockResponder{err: domain.ErrAgentTimeout}
	svc := newTestRouter(t, newMockStore(), client)

	_, err := svc.Dispatch(context.Background(), DispatchRequest{
		Topic:     "planning",
		Question:  "q",
		SubjectID: "s1",
	})
	if !errors.Is(err, domain.ErrAgentTimeout) {
		t.Fatalf("expected ErrAgentTimeout, got %v", err)
	}
}

func TestThresholdOverride(t *testing.T) {
	svc := newTestRouter(t, newMockStore(), &mockResponder{})

	if got := svc.Threshold("architecture", 80); got != 90 {
		t.Fatalf("expected route override 90, got %d", got)
	}
	if got := svc.Threshold("planning", 80); got != 80 {
		t.Fatalf("expected default 80, got %d", got)
	}
}
