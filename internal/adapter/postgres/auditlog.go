package postgres

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phaseline/phaseline/internal/domain/audit"
)

// AuditLog implements auditlog.Log using PostgreSQL (append-only).
// The table has no UPDATE or DELETE paths; entries are write-once.
type AuditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog creates a new AuditLog backed by the given connection pool.
func NewAuditLog(pool *pgxpool.Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

// Record appends a single audit entry.
func (l *AuditLog) Record(ctx context.Context, entry *audit.Entry) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_entries (session_id, subject_id, topic, question, answer, confidence, status, escalation_id, duration_ms, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		nullIfEmpty(entry.SessionID), entry.SubjectID, entry.Topic, entry.Question, entry.Answer,
		entry.Confidence, entry.Status, nullIfEmpty(entry.EscalationID), entry.Duration.Milliseconds(), entry.Metadata)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// QueryBySubject streams audit entries for a subject ordered by creation time.
// The returned sequence re-executes the query on each range, so callers may
// iterate it more than once.
func (l *AuditLog) QueryBySubject(ctx context.Context, subjectID string) iter.Seq2[audit.Entry, error] {
	return func(yield func(audit.Entry, error) bool) {
		rows, err := l.pool.Query(ctx,
			`SELECT id, COALESCE(session_id::text, ''), subject_id, topic, question, answer, confidence, status, COALESCE(escalation_id::text, ''), duration_ms, COALESCE(metadata, 'null'::jsonb), created_at
			 FROM audit_entries WHERE subject_id = $1 ORDER BY created_at ASC, id ASC`,
			subjectID)
		if err != nil {
			yield(audit.Entry{}, fmt.Errorf("query audit by subject %s: %w", subjectID, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e audit.Entry
			var durationMS int64
			if err := rows.Scan(&e.ID, &e.SessionID, &e.SubjectID, &e.Topic, &e.Question, &e.Answer,
				&e.Confidence, &e.Status, &e.EscalationID, &durationMS, &e.Metadata, &e.CreatedAt); err != nil {
				yield(audit.Entry{}, fmt.Errorf("scan audit entry: %w", err))
				return
			}
			e.Duration = time.Duration(durationMS) * time.Millisecond
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(audit.Entry{}, fmt.Errorf("iterate audit entries: %w", err))
		}
	}
}
