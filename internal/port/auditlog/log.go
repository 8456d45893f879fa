// Package auditlog defines the append-only audit log port (interface).
package auditlog

import (
	"context"
	"iter"

	"github.com/phaseline/phaseline/internal/domain/audit"
)

// Log is the port interface for the append-only exchange audit trail.
// Entries are write-once: no update or delete operations exist.
type Log interface {
	// Record appends a single entry atomically.
	Record(ctx context.Context, entry *audit.Entry) error

	// QueryBySubject returns a lazy sequence of entries for the subject,
	// ordered by timestamp ascending. The sequence is restartable: each
	// range re-executes the query.
	QueryBySubject(ctx context.Context, subjectID string) iter.Seq2[audit.Entry, error]
}
