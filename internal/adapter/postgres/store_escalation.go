package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/escalation"
)

const escalationColumns = `id, COALESCE(session_id::text, ''), subject_id, topic, question, tentative_answer, confidence, uncertainty_reasons, generation, status, human_action, human_response, responder_id, created_at, resolved_at`

func scanEscalation(row scannable) (escalation.Escalation, error) {
	var e escalation.Escalation
	err := row.Scan(&e.ID, &e.SessionID, &e.SubjectID, &e.Topic, &e.Question, &e.TentativeAnswer,
		&e.Confidence, &e.UncertaintyReasons, &e.Generation, &e.Status,
		&e.HumanAction, &e.HumanResponse, &e.ResponderID, &e.CreatedAt, &e.ResolvedAt)
	return e, err
}

func (s *Store) CreateEscalation(ctx context.Context, e *escalation.Escalation) (*escalation.Escalation, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO escalations (session_id, subject_id, topic, question, tentative_answer, confidence, uncertainty_reasons, generation, status, responder_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING %s`, escalationColumns),
		nullIfEmpty(e.SessionID), e.SubjectID, e.Topic, e.Question, e.TentativeAnswer,
		e.Confidence, pgTextArray(e.UncertaintyReasons), e.Generation, escalation.StatusPending, e.ResponderID)

	created, err := scanEscalation(row)
	if err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	return &created, nil
}

func (s *Store) GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM escalations WHERE id = $1`, escalationColumns), id)

	e, err := scanEscalation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get escalation %s", id)
	}
	return &e, nil
}

func (s *Store) ListEscalationsByStatus(ctx context.Context, status escalation.Status) ([]escalation.Escalation, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM escalations WHERE status = $1 ORDER BY created_at ASC`, escalationColumns), status)
	if err != nil {
		return nil, fmt.Errorf("list escalations by status %s: %w", status, err)
	}
	defer rows.Close()

	var result []escalation.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ResolveEscalation flips a pending row to resolved exactly once. The status
// guard in the WHERE clause makes concurrent resolutions race safely: the
// loser sees zero rows and gets domain.ErrEscalationResolved.
func (s *Store) ResolveEscalation(ctx context.Context, id string, action escalation.Action, responder, response string) (*escalation.Escalation, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE escalations
		 SET status = $2, human_action = $3, responder_id = $4, human_response = $5, resolved_at = NOW()
		 WHERE id = $1 AND status = $6
		 RETURNING %s`, escalationColumns),
		id, escalation.StatusResolved, action, responder, response, escalation.StatusPending)

	e, err := scanEscalation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from already terminal.
			if _, getErr := s.GetEscalation(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("resolve escalation %s: %w", id, domain.ErrEscalationResolved)
		}
		return nil, fmt.Errorf("resolve escalation %s: %w", id, err)
	}
	return &e, nil
}

// MarkEscalationExpired persists lazy deadline expiry. A no-op when the row
// already resolved or expired.
func (s *Store) MarkEscalationExpired(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE escalations SET status = $2, resolved_at = NOW() WHERE id = $1 AND status = $3`,
		id, escalation.StatusExpired, escalation.StatusPending)
	if err != nil {
		return fmt.Errorf("mark escalation %s expired: %w", id, err)
	}
	return nil
}
