package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/google/uuid"
)

// RunRepository handles workflow run database operations. All cursor
// mutations are conditional UPDATEs on (id, version, non-terminal status);
// zero rows affected resolves to either not-found or a concurrency conflict.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , workflow_id
  , contact_id
  , organization_id
  , current_node_id
  , status
  , next_execution_at
  , last_executed_at
  , attempts
  , last_error
  , version
  , created_at
  , updated_at
`

// CreateRun inserts a new enrollment.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	run.CreatedAt = now
	run.UpdatedAt = now

	query := `
		INSERT INTO workflow_runs (
			id, workflow_id, contact_id, organization_id, current_node_id,
			status, next_execution_at, attempts, last_error, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.ContactID, run.OrganizationID, run.CurrentNodeID,
		run.Status, run.NextExecutionAt, run.Attempts, run.LastError, run.Version,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// RunByID returns a run by its ID.
func (r *RunRepository) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", id, err)
	}

	return run, nil
}

// DueRuns returns up to limit due runs ordered by next execution time, unset
// deadlines first so newly enrolled runs are picked up immediately.
func (r *RunRepository) DueRuns(ctx context.Context, limit int) ([]*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE status IN ('running', 'waiting')
		  AND (next_execution_at IS NULL OR next_execution_at <= NOW())
		ORDER BY next_execution_at ASC NULLS FIRST, created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistence.NewRunError("DueRuns", "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0, limit)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewRunError("DueRuns", "", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewRunError("DueRuns", "", err)
	}

	return runs, nil
}

// AdvanceRun applies the step executor's cursor under the optimistic check.
func (r *RunRepository) AdvanceRun(ctx context.Context, runID string, version int, cursor models.RunCursor) error {
	query := `
		UPDATE workflow_runs
		SET current_node_id = $1
		  , status = $2
		  , next_execution_at = $3
		  , attempts = $4
		  , last_error = $5
		  , last_executed_at = NOW()
		  , updated_at = NOW()
		  , version = version + 1
		WHERE id = $6
		  AND version = $7
		  AND status IN ('running', 'waiting')
	`

	result, err := r.db.ExecContext(ctx, query,
		cursor.CurrentNodeID, cursor.Status, cursor.NextExecutionAt,
		cursor.Attempts, cursor.LastError, runID, version,
	)
	if err != nil {
		return persistence.NewRunError("AdvanceRun", runID, err)
	}

	return r.resolveConditionalUpdate(ctx, "AdvanceRun", runID, result)
}

// CompleteRun transitions the run to completed under the optimistic check.
func (r *RunRepository) CompleteRun(ctx context.Context, runID string, version int) error {
	query := `
		UPDATE workflow_runs
		SET status = 'completed'
		  , next_execution_at = NULL
		  , last_executed_at = NOW()
		  , updated_at = NOW()
		  , version = version + 1
		WHERE id = $1
		  AND version = $2
		  AND status IN ('running', 'waiting')
	`

	result, err := r.db.ExecContext(ctx, query, runID, version)
	if err != nil {
		return persistence.NewRunError("CompleteRun", runID, err)
	}

	return r.resolveConditionalUpdate(ctx, "CompleteRun", runID, result)
}

// FailRun transitions the run to failed, retaining the reason for operators.
func (r *RunRepository) FailRun(ctx context.Context, runID string, version int, reason string) error {
	query := `
		UPDATE workflow_runs
		SET status = 'failed'
		  , last_error = $1
		  , next_execution_at = NULL
		  , last_executed_at = NOW()
		  , updated_at = NOW()
		  , version = version + 1
		WHERE id = $2
		  AND version = $3
		  AND status IN ('running', 'waiting')
	`

	result, err := r.db.ExecContext(ctx, query, reason, runID, version)
	if err != nil {
		return persistence.NewRunError("FailRun", runID, err)
	}

	return r.resolveConditionalUpdate(ctx, "FailRun", runID, result)
}

// resolveConditionalUpdate distinguishes a missing run from a lost optimistic
// race when a conditional UPDATE touched no rows.
func (r *RunRepository) resolveConditionalUpdate(ctx context.Context, op, runID string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError(op, runID, err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE id = $1)", runID,
	).Scan(&exists)
	if err != nil {
		return persistence.NewRunError(op, runID, err)
	}

	if !exists {
		return persistence.NewRunError(op, runID, persistence.ErrRunNotFound)
	}

	return persistence.NewRunError(op, runID, persistence.ErrConcurrencyConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run           models.WorkflowRun
		currentNodeID sql.NullString
		nextExecution sql.NullTime
		lastExecuted  sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.WorkflowID, &run.ContactID, &run.OrganizationID,
		&currentNodeID, &run.Status, &nextExecution, &lastExecuted,
		&run.Attempts, &run.LastError, &run.Version,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentNodeID.Valid {
		run.CurrentNodeID = &currentNodeID.String
	}

	if nextExecution.Valid {
		t := nextExecution.Time
		run.NextExecutionAt = &t
	}

	if lastExecuted.Valid {
		t := lastExecuted.Time
		run.LastExecutedAt = &t
	}

	return &run, nil
}
