// Package audit defines the immutable audit-log entry written once per
// completed question/answer exchange.
package audit

import (
	"encoding/json"
	"time"
)

// Exchange statuses recorded in the audit log.
const (
	StatusAccepted = "accepted" // Confidence cleared the threshold, no human involved
	StatusResolved = "resolved" // Finalized by a human confirm/correct resolution
)

// Entry is one write-once audit record. Exactly one Entry exists per
// completed exchange, whether accepted outright or resolved after escalation.
type Entry struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id,omitempty"`
	SubjectID    string          `json:"subject_id"`
	Topic        string          `json:"topic"`
	Question     string          `json:"question"`
	Answer       string          `json:"answer"`
	Confidence   int             `json:"confidence"`
	Status       string          `json:"status"`
	EscalationID string          `json:"escalation_id,omitempty"`
	Duration     time.Duration   `json:"duration"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
