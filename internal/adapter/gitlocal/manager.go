// Package gitlocal implements the workspace.Manager port with local git CLI
// commands. Each subject gets an isolated clone under a shared root so
// concurrent workflows never touch the same working tree.
package gitlocal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/phaseline/phaseline/internal/git"
)

// Manager provisions per-subject git workspaces by cloning a base repository.
type Manager struct {
	root     string
	baseRepo string
	pool     *git.Pool
}

// NewManager creates a Manager rooted at root. baseRepo is the repository
// cloned for each new workspace; pool bounds concurrent git operations.
func NewManager(root, baseRepo string, pool *git.Pool) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("gitlocal: resolve root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return nil, fmt.Errorf("gitlocal: create root: %w", err)
	}
	return &Manager{root: absRoot, baseRepo: baseRepo, pool: pool}, nil
}

// CreateIsolatedWorkspace clones the base repository into a directory named
// after the subject. An existing workspace is returned as-is.
func (m *Manager) CreateIsolatedWorkspace(ctx context.Context, subjectID string) (string, error) {
	path, err := m.workspacePath(subjectID)
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		return path, nil
	}

	err = m.pool.Run(ctx, func() error {
		if _, execErr := runGit(ctx, "", "clone", m.baseRepo, path); execErr != nil {
			return fmt.Errorf("gitlocal: clone: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Remove tears down the subject's workspace. Removing an absent workspace is
// a no-op.
func (m *Manager) Remove(_ context.Context, subjectID string) error {
	path, err := m.workspacePath(subjectID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("gitlocal: remove workspace: %w", err)
	}
	return nil
}

// workspacePath maps a subject to its directory and rejects IDs that would
// escape the root.
func (m *Manager) workspacePath(subjectID string) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("gitlocal: subject id is required")
	}
	cleaned := filepath.Clean(subjectID)
	if cleaned != subjectID || strings.ContainsAny(subjectID, "/\\") || cleaned == ".." {
		return "", fmt.Errorf("gitlocal: invalid subject id %q", subjectID)
	}
	return filepath.Join(m.root, cleaned), nil
}

// runGit executes a git command and returns its stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
