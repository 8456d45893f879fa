// Package session defines multi-turn conversation sessions between a
// responder engagement and its askers.
package session

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Message roles within a session.
const (
	RoleAsker     = "asker"
	RoleResponder = "responder"
	RoleHuman     = "human"
)

// Session is a bounded, time-limited conversation context shared across
// several dispatch calls. Expiry is computed lazily from LastActivity; no
// timer enforces it.
type Session struct {
	ID            string    `json:"id"`
	ResponderRole string    `json:"responder_role"`
	SubjectID     string    `json:"subject_id"`
	Status        Status    `json:"status"`
	Messages      []Message `json:"messages,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Message is one append-only entry in a session, ordered by creation time
// with Seq as insertion tiebreaker.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateRequest is the request body for creating a session.
type CreateRequest struct {
	ResponderRole string `json:"responder_role"`
	SubjectID     string `json:"subject_id"`
}

// EffectiveStatus returns the status as observed at now: an active session
// past its inactivity window reads as expired.
func (s *Session) EffectiveStatus(now time.Time, ttl time.Duration) Status {
	if s.Status == StatusActive && now.After(s.LastActivity.Add(ttl)) {
		return StatusExpired
	}
	return s.Status
}

// Writable reports whether messages may still be appended at now.
func (s *Session) Writable(now time.Time, ttl time.Duration) bool {
	return s.EffectiveStatus(now, ttl) == StatusActive
}
