package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/session"
)

func newTestSessions(store *mockStore, ttl time.Duration) *SessionService {
	return NewSessionService(store, newMockCache(), ttl)
}

func TestSessionCreateValidates(t *testing.T) {
	svc := newTestSessions(newMockStore(), time.Hour)

	_, err := svc.Create(context.Background(), session.CreateRequest{SubjectID: "s1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing role, got %v", err)
	}

	_, err = svc.Create(context.Background(), session.CreateRequest{ResponderRole: "architect"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing subject, got %v", err)
	}
}

func TestSessionAppendAndHistory(t *testing.T) {
	svc := newTestSessions(newMockStore(), time.Hour)
	ctx := context.Background()

	sess, err := svc.Create(ctx, session.CreateRequest{ResponderRole: "architect", SubjectID: "s1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.AppendMessage(ctx, sess.ID, session.RoleAsker, "q1", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, sess.ID, session.RoleResponder, "a1", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := svc.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Seq != 1 || msgs[1].Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", msgs[0].Seq, msgs[1].Seq)
	}

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected messages on Get, got %d", len(got.Messages))
	}
}

func TestSessionHistoryServedFromCache(t *testing.T) {
	store := newMockStore()
	svc := newTestSessions(store, time.Hour)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{ResponderRole: "planner", SubjectID: "s1"})
	_, _ = svc.AppendMessage(ctx, sess.ID, session.RoleAsker, "q1", nil)

	if _, err := svc.History(ctx, sess.ID); err != nil {
		t.Fatalf("History: %v", err)
	}

	// Write behind the cache's back; the cached copy must win until invalidated.
	store.mu.Lock()
	store.messages[sess.ID] = append(store.messages[sess.ID], session.Message{SessionID: sess.ID, Seq: 2, Role: session.RoleResponder, Content: "sneaky"})
	store.mu.Unlock()

	msgs, err := svc.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected cached single message, got %d", len(msgs))
	}

	// Appending through the service invalidates.
	if _, err := svc.AppendMessage(ctx, sess.ID, session.RoleAsker, "q2", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	msgs, _ = svc.History(ctx, sess.ID)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after invalidation, got %d", len(msgs))
	}
}

func TestSessionClosedRejectsAppend(t *testing.T) {
	svc := newTestSessions(newMockStore(), time.Hour)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{ResponderRole: "planner", SubjectID: "s1"})
	if err := svc.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := svc.AppendMessage(ctx, sess.ID, session.RoleAsker, "too late", nil)
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionLazyExpiry(t *testing.T) {
	store := newMockStore()
	svc := newTestSessions(store, time.Hour)
	ctx := context.Background()

	sess, _ := svc.Create(ctx, session.CreateRequest{ResponderRole: "planner", SubjectID: "s1"})

	// Jump past the inactivity window.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != session.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}

	// Expiry was persisted, not just computed.
	raw, _ := store.GetSession(ctx, sess.ID)
	if raw.Status != session.StatusExpired {
		t.Fatalf("expected persisted expiry, got %s", raw.Status)
	}

	_, err = svc.AppendMessage(ctx, sess.ID, session.RoleAsker, "too late", nil)
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after expiry, got %v", err)
	}
}
