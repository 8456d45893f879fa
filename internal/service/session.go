// Package service implements the business logic of Phaseline.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/session"
	"github.com/phaseline/phaseline/internal/port/cache"
	"github.com/phaseline/phaseline/internal/port/database"
)

// historyCacheTTL bounds staleness of the cached message history. Appends
// invalidate eagerly; the TTL only covers writers on other instances.
const historyCacheTTL = 5 * time.Minute

// SessionService manages multi-turn conversation sessions.
type SessionService struct {
	db    database.Store
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionService creates a SessionService. ttl is the inactivity window
// after which a session lazily expires.
func NewSessionService(db database.Store, c cache.Cache, ttl time.Duration) *SessionService {
	return &SessionService{db: db, cache: c, ttl: ttl, now: time.Now}
}

// Create opens a new active session.
func (s *SessionService) Create(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if req.ResponderRole == "" {
		return nil, fmt.Errorf("%w: responder_role is required", domain.ErrValidation)
	}
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", domain.ErrValidation)
	}
	return s.db.CreateSession(ctx, req, s.ttl)
}

// Get returns a session with its messages. Expiry is applied lazily: an
// active session past its inactivity window is persisted as expired before
// it is returned.
func (s *SessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.getCurrent(ctx, id)
	if err != nil {
		return nil, err
	}

	msgs, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

// getCurrent fetches the session and settles lazy expiry.
func (s *SessionService) getCurrent(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.db.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if sess.Status == session.StatusActive && sess.EffectiveStatus(s.now(), s.ttl) == session.StatusExpired {
		if err := s.db.MarkSessionExpired(ctx, id); err != nil {
			slog.Warn("persist session expiry failed", "session_id", id, "error", err)
		}
		sess.Status = session.StatusExpired
	}
	return sess, nil
}

// AppendMessage appends one message to an active session. Closed and expired
// sessions reject appends with domain.ErrSessionClosed.
func (s *SessionService) AppendMessage(ctx context.Context, sessionID, role, content string, metadata json.RawMessage) (*session.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	sess, err := s.getCurrent(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, domain.ErrSessionClosed)
	}

	msg, err := s.db.AppendMessage(ctx, &session.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateHistory(ctx, sessionID)
	return msg, nil
}

// History returns the session's messages in order, read through the cache.
func (s *SessionService) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	key := historyCacheKey(sessionID)

	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var msgs []session.Message
		if err := json.Unmarshal(data, &msgs); err == nil {
			return msgs, nil
		}
		// Corrupt entry: drop it and fall through to the database.
		s.invalidateHistory(ctx, sessionID)
	}

	msgs, err := s.db.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(msgs); err == nil {
		if err := s.cache.Set(ctx, key, data, historyCacheTTL); err != nil {
			slog.Debug("cache session history failed", "session_id", sessionID, "error", err)
		}
	}
	return msgs, nil
}

// Close marks a session closed. Closing is terminal; it never flips back.
func (s *SessionService) Close(ctx context.Context, id string) error {
	if err := s.db.CloseSession(ctx, id); err != nil {
		return err
	}
	s.invalidateHistory(ctx, id)
	return nil
}

func (s *SessionService) invalidateHistory(ctx context.Context, sessionID string) {
	if err := s.cache.Delete(ctx, historyCacheKey(sessionID)); err != nil {
		slog.Debug("invalidate session history cache failed", "session_id", sessionID, "error", err)
	}
}

func historyCacheKey(sessionID string) string {
	return "session:history:" + sessionID
}
