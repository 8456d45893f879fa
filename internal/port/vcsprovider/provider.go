// Package vcsprovider defines the VCS Gateway port (interface).
// The core only calls out through it to signal externally visible progress;
// it never parses VCS webhook payloads.
package vcsprovider

import "context"

// Provider is the boundary to a version-control host's issue tracker.
type Provider interface {
	// CreateIssue opens a tracking issue for a subject; returns the issue id.
	CreateIssue(ctx context.Context, subjectID, title, body string) (string, error)

	// Comment adds a comment to the subject's tracking issue.
	Comment(ctx context.Context, subjectID, body string) error

	// Label applies a label to the subject's tracking issue.
	Label(ctx context.Context, subjectID, label string) error
}
