// Package responderhttp provides an HTTP client for responder endpoints.
package responderhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/port/responder"
	"github.com/phaseline/phaseline/internal/resilience"
)

// Client posts questions to responder HTTP endpoints and decodes their
// structured answers. One Client serves all configured routes; the endpoint
// is passed per call.
type Client struct {
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new responder client. The HTTP client carries no
// global timeout; per-call deadlines come from the route's dispatch timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Ask dispatches one question to the endpoint and waits up to timeout for an
// answer. A missing correlation ID is filled in. Deadline overruns map to
// domain.ErrAgentTimeout; the timed-out request is abandoned, never retried.
func (c *Client) Ask(ctx context.Context, endpoint string, req responder.Request, timeout time.Duration) (*responder.Answer, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal responder request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var answer responder.Answer
	call := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return fmt.Errorf("responder %s correlation %s: %w", endpoint, req.CorrelationID, domain.ErrAgentTimeout)
			}
			return fmt.Errorf("responder %s: %w: %w", endpoint, domain.ErrAgentDispatch, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read responder response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("responder %s status %d: %s: %w", endpoint, resp.StatusCode, string(data), domain.ErrAgentDispatch)
		}

		if err := json.Unmarshal(data, &answer); err != nil {
			return fmt.Errorf("unmarshal responder answer: %w: %w", domain.ErrAgentDispatch, err)
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
	} else if err := call(); err != nil {
		return nil, err
	}

	if answer.CorrelationID == "" {
		answer.CorrelationID = req.CorrelationID
	}
	if answer.Confidence < 0 || answer.Confidence > 100 {
		return nil, fmt.Errorf("responder answer confidence %d out of range: %w", answer.Confidence, domain.ErrAgentDispatch)
	}
	return &answer, nil
}
