// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed or out-of-range input; the caller should fix and retry.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a workflow trigger that is not applicable
// to the workflow's current status.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrUnknownTopic indicates a dispatch topic with no configured route.
var ErrUnknownTopic = errors.New("unknown topic")

// ErrSessionClosed indicates a write to a closed or expired session.
var ErrSessionClosed = errors.New("session is closed")

// ErrEscalationResolved indicates a resolution attempt on an escalation
// that is no longer pending.
var ErrEscalationResolved = errors.New("escalation already resolved")

// ErrAgentTimeout indicates a responder did not answer within the dispatch timeout.
// Transient; the caller may retry with backoff.
var ErrAgentTimeout = errors.New("responder timed out")

// ErrAgentDispatch indicates a responder call failed before producing an answer.
// Transient; the caller may retry with backoff.
var ErrAgentDispatch = errors.New("responder dispatch failed")
