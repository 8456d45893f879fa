package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/workflow"
	"github.com/phaseline/phaseline/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Workflows ---

const workflowColumns = `id, type, status, subject_id, current_phase, phase_name, COALESCE(context, 'null'::jsonb), result, error, rework_count, version, created_at, updated_at`

func scanWorkflow(row scannable) (workflow.Workflow, error) {
	var w workflow.Workflow
	err := row.Scan(&w.ID, &w.Type, &w.Status, &w.SubjectID, &w.CurrentPhase, &w.PhaseName,
		&w.Context, &w.Result, &w.Error, &w.ReworkCount, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Store) CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (*workflow.Workflow, error) {
	phases, err := workflow.Phases(req.Type)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO workflows (type, status, subject_id, current_phase, phase_name, context)
		 VALUES ($1, $2, $3, 1, $4, $5)
		 RETURNING %s`, workflowColumns),
		req.Type, workflow.StatusPending, req.SubjectID, phases[0].Name, req.Context)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return &w, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM workflows WHERE id = $1`, workflowColumns), id)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, notFoundWrap(err, "get workflow %s", id)
	}
	return &w, nil
}

func (s *Store) ListWorkflowsBySubject(ctx context.Context, subjectID string) ([]workflow.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM workflows WHERE subject_id = $1 ORDER BY created_at DESC`, workflowColumns), subjectID)
	if err != nil {
		return nil, fmt.Errorf("list workflows by subject %s: %w", subjectID, err)
	}
	defer rows.Close()

	var result []workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// TransitionWorkflow applies a status change and appends the matching history
// row in one transaction. The version check serializes concurrent writers:
// a stale ExpectedVersion loses with domain.ErrConflict and must re-read.
func (s *Store) TransitionWorkflow(ctx context.Context, req database.TransitionRequest) (*workflow.Workflow, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var fromStatus workflow.Status
	var version int
	err = tx.QueryRow(ctx,
		`SELECT status, version FROM workflows WHERE id = $1 FOR UPDATE`,
		req.WorkflowID).Scan(&fromStatus, &version)
	if err != nil {
		return nil, notFoundWrap(err, "transition workflow %s", req.WorkflowID)
	}
	if version != req.ExpectedVersion {
		return nil, fmt.Errorf("transition workflow %s: version %d != expected %d: %w",
			req.WorkflowID, version, req.ExpectedVersion, domain.ErrConflict)
	}

	reworkDelta := 0
	if req.Rework {
		reworkDelta = 1
	}

	row := tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE workflows
		 SET status = $2, current_phase = $3, phase_name = $4,
		     result = $5, error = $6,
		     rework_count = rework_count + $7,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING %s`, workflowColumns),
		req.WorkflowID, req.To, req.Phase, req.PhaseName, req.Result, req.Error, reworkDelta)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("update workflow %s: %w", req.WorkflowID, err)
	}

	// Seq is assigned inside the same tx so history ordering is total even
	// when created_at timestamps collide.
	_, err = tx.Exec(ctx,
		`INSERT INTO workflow_history (workflow_id, seq, from_status, to_status, "trigger", metadata)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
		 FROM workflow_history WHERE workflow_id = $1`,
		req.WorkflowID, fromStatus, req.To, req.Trigger, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("append workflow history %s: %w", req.WorkflowID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition %s: %w", req.WorkflowID, err)
	}
	return &w, nil
}

const historyColumns = `id, workflow_id, seq, from_status, to_status, "trigger", COALESCE(metadata, 'null'::jsonb), created_at`

func scanHistoryEntry(row scannable) (workflow.HistoryEntry, error) {
	var h workflow.HistoryEntry
	err := row.Scan(&h.ID, &h.WorkflowID, &h.Seq, &h.FromStatus, &h.ToStatus, &h.Trigger, &h.Metadata, &h.CreatedAt)
	return h, err
}

func (s *Store) ListHistory(ctx context.Context, workflowID string) ([]workflow.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM workflow_history WHERE workflow_id = $1 ORDER BY seq ASC`, historyColumns), workflowID)
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", workflowID, err)
	}
	defer rows.Close()

	var result []workflow.HistoryEntry
	for rows.Next() {
		h, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *Store) LastHistoryEntry(ctx context.Context, workflowID string) (*workflow.HistoryEntry, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM workflow_history WHERE workflow_id = $1 ORDER BY seq DESC LIMIT 1`, historyColumns), workflowID)

	h, err := scanHistoryEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last history entry %s: %w", workflowID, err)
	}
	return &h, nil
}
