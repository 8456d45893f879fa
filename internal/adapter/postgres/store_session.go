package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/phaseline/phaseline/internal/domain/session"
)

const sessionColumns = `id, responder_role, subject_id, status, created_at, last_activity, expires_at`

func scanSession(row scannable) (session.Session, error) {
	var s session.Session
	err := row.Scan(&s.ID, &s.ResponderRole, &s.SubjectID, &s.Status, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt)
	return s, err
}

func (s *Store) CreateSession(ctx context.Context, req session.CreateRequest, ttl time.Duration) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO sessions (responder_role, subject_id, status, expires_at)
		 VALUES ($1, $2, $3, NOW() + make_interval(secs => $4))
		 RETURNING %s`, sessionColumns),
		req.ResponderRole, req.SubjectID, session.StatusActive, ttl.Seconds())

	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &created, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns), id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &sess, nil
}

// AppendMessage inserts the message and bumps last_activity in one
// transaction so the inactivity window always reflects the latest append.
// The session row is updated first: its row lock serializes concurrent
// appends so MAX(seq)+1 cannot hand two writers the same seq.
func (s *Store) AppendMessage(ctx context.Context, m *session.Message) (*session.Message, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin append message tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET last_activity = NOW() WHERE id = $1`, m.SessionID)
	if err := execExpectOne(tag, err, "touch session %s", m.SessionID); err != nil {
		return nil, err
	}

	var created session.Message
	err = tx.QueryRow(ctx,
		`INSERT INTO session_messages (session_id, seq, role, content, metadata)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		 FROM session_messages WHERE session_id = $1
		 RETURNING id, session_id, seq, role, content, COALESCE(metadata, 'null'::jsonb), created_at`,
		m.SessionID, m.Role, m.Content, m.Metadata,
	).Scan(&created.ID, &created.SessionID, &created.Seq, &created.Role, &created.Content, &created.Metadata, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message to session %s: %w", m.SessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append message %s: %w", m.SessionID, err)
	}
	return &created, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, role, content, COALESCE(metadata, 'null'::jsonb), created_at
		 FROM session_messages WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	var result []session.Message
	for rows.Next() {
		var m session.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) CloseSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1`, id, session.StatusClosed)
	return execExpectOne(tag, err, "close session %s", id)
}

// MarkSessionExpired persists lazily observed expiry. Closed sessions stay
// closed; only active rows flip.
func (s *Store) MarkSessionExpired(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1 AND status = $3`,
		id, session.StatusExpired, session.StatusActive)
	if err != nil {
		return fmt.Errorf("mark session %s expired: %w", id, err)
	}
	return nil
}
