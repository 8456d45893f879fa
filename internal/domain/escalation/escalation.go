// Package escalation defines the durable record of a question whose
// automated answer fell below the trust threshold.
package escalation

import (
	"fmt"
	"time"

	"github.com/phaseline/phaseline/internal/domain"
)

// Status represents the lifecycle state of an escalation.
// Escalations are single-use: pending resolves or expires exactly once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Action is the human resolution applied to a pending escalation.
type Action string

const (
	ActionConfirm    Action = "confirm"     // Tentative answer becomes final
	ActionCorrect    Action = "correct"     // Corrected answer becomes final
	ActionAddContext Action = "add_context" // Re-dispatch with extra context; does not finalize
)

// Valid reports whether a is a known resolution action.
func (a Action) Valid() bool {
	return a == ActionConfirm || a == ActionCorrect || a == ActionAddContext
}

// Escalation is a pending-human-review request. Invariant: ResolvedAt is set
// iff Status != pending.
type Escalation struct {
	ID                 string     `json:"id"`
	SessionID          string     `json:"session_id,omitempty"`
	SubjectID          string     `json:"subject_id"`
	Topic              string     `json:"topic"`
	Question           string     `json:"question"`
	TentativeAnswer    string     `json:"tentative_answer"`
	Confidence         int        `json:"confidence"`
	UncertaintyReasons []string   `json:"uncertainty_reasons,omitempty"`
	Generation         int        `json:"generation"` // add_context re-dispatch depth, 0 for the first escalation of a question
	Status             Status     `json:"status"`
	HumanAction        Action     `json:"human_action,omitempty"`
	HumanResponse      string     `json:"human_response,omitempty"`
	ResponderID        string     `json:"responder_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

// Overdue reports whether a still-pending escalation has passed its deadline
// at now. Expiry is applied lazily on read.
func (e *Escalation) Overdue(now time.Time, deadline time.Duration) bool {
	return e.Status == StatusPending && now.After(e.CreatedAt.Add(deadline))
}

// ResolveRequest is the request body for resolving an escalation.
type ResolveRequest struct {
	Action            Action `json:"action"`
	Responder         string `json:"responder"`
	CorrectedAnswer   string `json:"corrected_answer,omitempty"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// Validate checks a resolve request before it touches storage.
func (r *ResolveRequest) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, r.Action)
	}
	if r.Responder == "" {
		return fmt.Errorf("%w: responder is required", domain.ErrValidation)
	}
	if r.Action == ActionCorrect && r.CorrectedAnswer == "" {
		return fmt.Errorf("%w: corrected_answer is required for action correct", domain.ErrValidation)
	}
	if r.Action == ActionAddContext && r.AdditionalContext == "" {
		return fmt.Errorf("%w: additional_context is required for action add_context", domain.ErrValidation)
	}
	return nil
}

// ResolutionResult is returned to the caller after a resolution is recorded.
// Redispatch signals that the caller must re-route the question with the
// additional context; the original escalation stays terminal either way.
type ResolutionResult struct {
	Escalation *Escalation `json:"escalation"`
	Answer     string      `json:"answer,omitempty"`
	Confidence int         `json:"confidence,omitempty"`
	Redispatch bool        `json:"redispatch"`
}
