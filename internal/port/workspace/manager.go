// Package workspace defines the Workspace Manager port (interface).
// Invoked at phase boundaries only, never inside the transition critical section.
package workspace

import "context"

// Manager provisions isolated workspaces for units of work.
type Manager interface {
	// CreateIsolatedWorkspace provisions a workspace for the subject and
	// returns its path. Idempotent for an existing workspace.
	CreateIsolatedWorkspace(ctx context.Context, subjectID string) (string, error)

	// Remove tears down the subject's workspace.
	Remove(ctx context.Context, subjectID string) error
}
