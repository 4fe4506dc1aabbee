package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/google/uuid"
)

const runsCollection = "runs"

// RunRepository stores workflow runs as JSON documents. The persistence-wide
// lock makes the read-check-write cycle atomic, mirroring the conditional
// UPDATE the PostgreSQL backend uses.
type RunRepository struct {
	persistence *Persistence
}

// CreateRun inserts a new enrollment.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

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

	return r.persistence.writeDocument(runsCollection, run.ID, run)
}

// RunByID returns a run by its ID.
func (r *RunRepository) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.readRun(id)
}

// DueRuns returns up to limit due runs ordered by next execution time, unset
// deadlines first.
func (r *RunRepository) DueRuns(ctx context.Context, limit int) ([]*models.WorkflowRun, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	ids, err := r.persistence.documentIDs(runsCollection)
	if err != nil {
		return nil, persistence.NewRunError("DueRuns", "", err)
	}

	now := time.Now().UTC()
	due := make([]*models.WorkflowRun, 0, limit)

	for _, id := range ids {
		run, err := r.readRun(id)
		if err != nil {
			return nil, persistence.NewRunError("DueRuns", id, err)
		}

		if run.Status.Terminal() {
			continue
		}

		if run.NextExecutionAt != nil && run.NextExecutionAt.After(now) {
			continue
		}

		due = append(due, run)
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]

		if a.NextExecutionAt == nil || b.NextExecutionAt == nil {
			return b.NextExecutionAt != nil // nil deadlines first
		}

		if a.NextExecutionAt.Equal(*b.NextExecutionAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.NextExecutionAt.Before(*b.NextExecutionAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// AdvanceRun applies the step executor's cursor under the optimistic check.
func (r *RunRepository) AdvanceRun(ctx context.Context, runID string, version int, cursor models.RunCursor) error {
	return r.mutate(runID, version, "AdvanceRun", func(run *models.WorkflowRun) {
		run.CurrentNodeID = cursor.CurrentNodeID
		run.Status = cursor.Status
		run.NextExecutionAt = cursor.NextExecutionAt
		run.Attempts = cursor.Attempts
		run.LastError = cursor.LastError
	})
}

// CompleteRun transitions the run to completed under the optimistic check.
func (r *RunRepository) CompleteRun(ctx context.Context, runID string, version int) error {
	return r.mutate(runID, version, "CompleteRun", func(run *models.WorkflowRun) {
		run.Status = models.RunStatusCompleted
		run.NextExecutionAt = nil
	})
}

// FailRun transitions the run to failed, retaining the reason.
func (r *RunRepository) FailRun(ctx context.Context, runID string, version int, reason string) error {
	return r.mutate(runID, version, "FailRun", func(run *models.WorkflowRun) {
		run.Status = models.RunStatusFailed
		run.LastError = reason
		run.NextExecutionAt = nil
	})
}

func (r *RunRepository) mutate(runID string, version int, op string, apply func(*models.WorkflowRun)) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	run, err := r.readRun(runID)
	if err != nil {
		return persistence.NewRunError(op, runID, err)
	}

	if run.Version != version || run.Status.Terminal() {
		return persistence.NewRunError(op, runID, persistence.ErrConcurrencyConflict)
	}

	apply(run)

	now := time.Now().UTC()
	run.LastExecutedAt = &now
	run.UpdatedAt = now
	run.Version++

	err = r.persistence.writeDocument(runsCollection, runID, run)
	if err != nil {
		return persistence.NewRunError(op, runID, err)
	}

	return nil
}

func (r *RunRepository) readRun(id string) (*models.WorkflowRun, error) {
	var run models.WorkflowRun

	err := r.persistence.readDocument(runsCollection, id, &run)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, err
	}

	return &run, nil
}
