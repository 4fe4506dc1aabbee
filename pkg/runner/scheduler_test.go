package runner

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupScheduler(t *testing.T) (*executorFixture, *Scheduler) {
	t.Helper()

	f := setupExecutor(t, sequenceWorkflow())
	scheduler := NewScheduler(f.store, f.executor, nil, slog.Default())

	return f, scheduler
}

func TestScheduler_ProcessDueRuns_Empty(t *testing.T) {
	_, scheduler := setupScheduler(t)

	batch, err := scheduler.ProcessDueRuns(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, batch.Processed)
	assert.Empty(t, batch.Details)
}

func TestScheduler_ProcessDueRuns_StepsDueRunsOnly(t *testing.T) {
	f, scheduler := setupScheduler(t)
	ctx := context.Background()

	due := f.enroll(t, "wf-1")

	future := time.Now().UTC().Add(time.Hour)
	parked := &models.WorkflowRun{
		WorkflowID:      "wf-1",
		ContactID:       "contact-1",
		OrganizationID:  "org-1",
		Status:          models.RunStatusWaiting,
		NextExecutionAt: &future,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(ctx, parked))

	done := &models.WorkflowRun{
		WorkflowID:     "wf-1",
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusCompleted,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(ctx, done))

	batch, err := scheduler.ProcessDueRuns(ctx, DefaultBatchLimit)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 0, batch.Skipped)
	require.Len(t, batch.Details, 1)
	assert.Equal(t, due.ID, batch.Details[0].RunID)

	// The due run advanced one node: welcome email sent, cursor at the delay.
	require.Len(t, f.sender.sent, 1)

	stored := f.reload(t, parked.ID)
	assert.Equal(t, 0, stored.Version, "parked run untouched")
}

func TestScheduler_ProcessDueRuns_HonorsBatchLimit(t *testing.T) {
	f, scheduler := setupScheduler(t)

	for range 5 {
		f.enroll(t, "wf-1")
	}

	batch, err := scheduler.ProcessDueRuns(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Processed)
	assert.Len(t, batch.Details, 3)
}

func TestScheduler_ProcessDueRuns_CountsOutcomes(t *testing.T) {
	f, scheduler := setupScheduler(t)
	ctx := context.Background()

	// One run at the last node completes; one on a ghost workflow fails.
	last := "e2"
	finishing := &models.WorkflowRun{
		WorkflowID:     "wf-1",
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusRunning,
		CurrentNodeID:  &last,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(ctx, finishing))

	broken := &models.WorkflowRun{
		WorkflowID:     "wf-ghost",
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusRunning,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(ctx, broken))

	batch, err := scheduler.ProcessDueRuns(ctx, DefaultBatchLimit)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Processed)
	assert.Equal(t, 1, batch.Completed)
	assert.Equal(t, 1, batch.Failed)
}

func TestScheduler_ProcessDueRuns_WaitingRunBecomesDue(t *testing.T) {
	f, scheduler := setupScheduler(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	next := "e2"
	woken := &models.WorkflowRun{
		WorkflowID:      "wf-1",
		ContactID:       "contact-1",
		OrganizationID:  "org-1",
		Status:          models.RunStatusWaiting,
		CurrentNodeID:   &next,
		NextExecutionAt: &past,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(ctx, woken))

	batch, err := scheduler.ProcessDueRuns(ctx, DefaultBatchLimit)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Completed)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "tpl-followup", f.sender.sent[0].TemplateID)
}
