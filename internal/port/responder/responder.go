// Package responder defines the port for automated expert responders.
package responder

import (
	"context"
	"time"

	"github.com/phaseline/phaseline/internal/domain/session"
)

// Request is one question dispatched to a responder endpoint.
// CorrelationID identifies the dispatch so late answers for an
// already-timed-out request can be discarded by the caller.
type Request struct {
	CorrelationID string            `json:"correlation_id"`
	Topic         string            `json:"topic"`
	Question      string            `json:"question"`
	Context       string            `json:"context,omitempty"`
	Model         string            `json:"model,omitempty"`
	History       []session.Message `json:"history,omitempty"`
}

// Answer is a responder's structured reply.
type Answer struct {
	CorrelationID      string   `json:"correlation_id"`
	Answer             string   `json:"answer"`
	Confidence         int      `json:"confidence"`
	UncertaintyReasons []string `json:"uncertainty_reasons,omitempty"`
	ResponderID        string   `json:"responder_id"`
}

// Client is the port interface for calling a responder endpoint.
// Implementations must honor ctx deadlines; there is no mid-flight
// cancellation on the responder side.
type Client interface {
	Ask(ctx context.Context, endpoint string, req Request, timeout time.Duration) (*Answer, error)
}
