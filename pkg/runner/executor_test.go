package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dripflow/dripflow/pkg/mailer"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSender records send requests. The scheduler steps runs concurrently,
// hence the lock.
type stubSender struct {
	mu   sync.Mutex
	sent []mailer.SendRequest
	err  error
}

func (s *stubSender) Send(_ context.Context, req mailer.SendRequest) (*models.EmailSendRecord, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, req)

	return &models.EmailSendRecord{ID: "send-" + req.TemplateID, RunID: req.RunID}, nil
}

// sequenceWorkflow is the canonical shape: trigger, welcome email, two-hour
// delay, follow-up email.
func sequenceWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:             "wf-1",
		OrganizationID: "org-1",
		Name:           "Welcome sequence",
		Active:         true,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "e1", Type: models.NodeTypeEmail, Data: map[string]any{"template_id": "tpl-welcome"}},
			{ID: "d1", Type: models.NodeTypeDelay, Data: map[string]any{"duration": float64(2), "unit": "hours"}},
			{ID: "e2", Type: models.NodeTypeEmail, Data: map[string]any{"template_id": "tpl-followup"}},
		},
		Edges: []*models.Edge{
			{ID: "edge-1", Source: "t1", Target: "e1"},
			{ID: "edge-2", Source: "e1", Target: "d1"},
			{ID: "edge-3", Source: "d1", Target: "e2"},
		},
	}
}

type executorFixture struct {
	store    *file.Persistence
	sender   *stubSender
	executor *Executor
}

func setupExecutor(t *testing.T, workflow *models.Workflow) *executorFixture {
	t.Helper()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	sender := &stubSender{}

	if workflow != nil {
		require.NoError(t, store.WorkflowRepository().SaveWorkflow(ctx, workflow))
	}

	contacts := store.ContactRepository().(*file.ContactRepository)
	require.NoError(t, contacts.SaveContact(ctx, &models.Contact{
		ID:             "contact-1",
		OrganizationID: "org-1",
		FirstName:      "Ada",
		Email:          "ada@example.com",
		Fields:         map[string]any{"plan": "pro"},
	}))

	return &executorFixture{
		store:    store,
		sender:   sender,
		executor: NewExecutor(store, sender, nil, slog.Default()),
	}
}

func (f *executorFixture) enroll(t *testing.T, workflowID string) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{
		WorkflowID:     workflowID,
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusRunning,
	}
	require.NoError(t, f.store.RunRepository().CreateRun(context.Background(), run))

	return run
}

func (f *executorFixture) reload(t *testing.T, id string) *models.WorkflowRun {
	t.Helper()

	run, err := f.store.RunRepository().RunByID(context.Background(), id)
	require.NoError(t, err)

	return run
}

func TestExecutor_FirstStepSendsTriggerTarget(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	result := f.executor.ExecuteStep(context.Background(), run)

	require.Empty(t, result.Error)
	assert.False(t, result.Skipped)
	assert.Equal(t, models.RunStatusRunning, result.Status)

	// The null cursor resolves through the trigger straight into the first
	// email, so enrollment's first tick does real work.
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "tpl-welcome", f.sender.sent[0].TemplateID)

	stored := f.reload(t, run.ID)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "d1", *stored.CurrentNodeID)
	assert.Equal(t, models.RunStatusRunning, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestExecutor_DelayParksRunPastTheDelay(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	node := "d1"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	require.Empty(t, result.Error)
	assert.Equal(t, models.RunStatusWaiting, result.Status)

	stored := f.reload(t, run.ID)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "e2", *stored.CurrentNodeID, "cursor lands after the delay")
	assert.Equal(t, models.RunStatusWaiting, stored.Status)

	require.NotNil(t, stored.NextExecutionAt)
	wake := time.Until(*stored.NextExecutionAt)
	assert.InDelta(t, (2 * time.Hour).Seconds(), wake.Seconds(), 5)

	assert.Empty(t, f.sender.sent)
}

func TestExecutor_LastNodeCompletesRun(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	node := "e2"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	require.Empty(t, result.Error)
	assert.Equal(t, models.RunStatusCompleted, result.Status)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "tpl-followup", f.sender.sent[0].TemplateID)

	stored := f.reload(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextExecutionAt)
}

func TestExecutor_TrailingDelayCompletes(t *testing.T) {
	workflow := sequenceWorkflow()
	workflow.Edges = workflow.Edges[:2] // d1 keeps no outgoing edge

	f := setupExecutor(t, workflow)
	run := f.enroll(t, "wf-1")

	node := "d1"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	assert.Equal(t, models.RunStatusCompleted, result.Status)
}

func TestExecutor_ConditionSelectsBranch(t *testing.T) {
	workflow := &models.Workflow{
		ID:             "wf-cond",
		OrganizationID: "org-1",
		Name:           "Branching sequence",
		Active:         true,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: map[string]any{
					"predicate": map[string]any{
						"kind":     "field",
						"field":    "plan",
						"operator": "eq",
						"value":    "pro",
					},
				},
			},
			{ID: "e-pro", Type: models.NodeTypeEmail, Data: map[string]any{"template_id": "tpl-pro"}},
			{ID: "e-free", Type: models.NodeTypeEmail, Data: map[string]any{"template_id": "tpl-free"}},
		},
		Edges: []*models.Edge{
			{ID: "edge-1", Source: "t1", Target: "c1"},
			{ID: "edge-2", Source: "c1", Target: "e-pro", SourceHandle: "true"},
			{ID: "edge-3", Source: "c1", Target: "e-free", SourceHandle: "false"},
		},
	}

	f := setupExecutor(t, workflow)
	run := f.enroll(t, "wf-cond")

	node := "c1"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	require.Empty(t, result.Error)

	stored := f.reload(t, run.ID)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "e-pro", *stored.CurrentNodeID, "pro-plan contact takes the true branch")
	assert.Empty(t, f.sender.sent, "condition evaluation sends nothing")
}

func TestExecutor_ConcurrentAdvanceSkips(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	// Another invocation advanced the run: the stored version moved on.
	first := f.executor.ExecuteStep(context.Background(), run)
	require.Empty(t, first.Error)

	stale := f.executor.ExecuteStep(context.Background(), run)
	assert.True(t, stale.Skipped)
	assert.Empty(t, stale.Error)

	stored := f.reload(t, run.ID)
	assert.Equal(t, 1, stored.Version, "stale step writes nothing")
}

func TestExecutor_EmailFailureSchedulesRetry(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	f.sender.err = errors.New("smtp: connection refused")

	run := f.enroll(t, "wf-1")

	node := "e2"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	assert.Equal(t, models.RunStatusWaiting, result.Status)
	assert.Contains(t, result.Error, "connection refused")

	stored := f.reload(t, run.ID)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "e2", *stored.CurrentNodeID, "the failing node is retried, not skipped")
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "connection refused")

	require.NotNil(t, stored.NextExecutionAt)
	backoff := time.Until(*stored.NextExecutionAt)
	assert.InDelta(t, time.Minute.Seconds(), backoff.Seconds(), 5)
}

func TestExecutor_EmailFailureBacksOffExponentially(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	f.sender.err = errors.New("smtp: connection refused")

	run := f.enroll(t, "wf-1")

	node := "e2"
	run.CurrentNodeID = &node
	run.Attempts = 1

	result := f.executor.ExecuteStep(context.Background(), run)
	assert.Equal(t, models.RunStatusWaiting, result.Status)

	stored := f.reload(t, run.ID)
	assert.Equal(t, 2, stored.Attempts)

	require.NotNil(t, stored.NextExecutionAt)
	backoff := time.Until(*stored.NextExecutionAt)
	assert.InDelta(t, (2 * time.Minute).Seconds(), backoff.Seconds(), 5)
}

func TestExecutor_EmailFailureExhaustsAttempts(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	f.sender.err = errors.New("smtp: connection refused")

	run := f.enroll(t, "wf-1")

	node := "e2"
	run.CurrentNodeID = &node
	run.Attempts = 2

	result := f.executor.ExecuteStep(context.Background(), run)
	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "after 3 attempts")

	stored := f.reload(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "connection refused")
}

func TestExecutor_EmailSuccessResetsAttempts(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	node := "e1"
	run.CurrentNodeID = &node
	run.Attempts = 2

	result := f.executor.ExecuteStep(context.Background(), run)
	require.Empty(t, result.Error)

	stored := f.reload(t, run.ID)
	assert.Equal(t, 0, stored.Attempts)
}

func TestExecutor_EmailNodeWithoutTemplateFails(t *testing.T) {
	workflow := sequenceWorkflow()
	workflow.Nodes[1].Data = map[string]any{}

	f := setupExecutor(t, workflow)
	run := f.enroll(t, "wf-1")

	node := "e1"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "template_id")
}

func TestExecutor_MissingWorkflowFailsRun(t *testing.T) {
	f := setupExecutor(t, nil)
	run := f.enroll(t, "wf-ghost")

	result := f.executor.ExecuteStep(context.Background(), run)

	assert.Equal(t, models.RunStatusFailed, result.Status)

	stored := f.reload(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "workflow")
}

func TestExecutor_DanglingEdgeTargetFailsRun(t *testing.T) {
	workflow := sequenceWorkflow()
	workflow.Edges[1].Target = "ghost"

	f := setupExecutor(t, workflow)
	run := f.enroll(t, "wf-1")

	node := "e1"
	run.CurrentNodeID = &node
	result := f.executor.ExecuteStep(context.Background(), run)

	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "ghost")
}

func TestExecutor_TriggerWithoutEdgeCompletes(t *testing.T) {
	workflow := &models.Workflow{
		ID:             "wf-empty",
		OrganizationID: "org-1",
		Name:           "Trigger only",
		Nodes:          []*models.Node{{ID: "t1", Type: models.NodeTypeTrigger}},
	}

	f := setupExecutor(t, workflow)
	run := f.enroll(t, "wf-empty")

	result := f.executor.ExecuteStep(context.Background(), run)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
}

// The full welcome-sequence walk: each tick advances exactly one node, and the
// delay parks the run in between.
func TestExecutor_SequenceEndToEnd(t *testing.T) {
	f := setupExecutor(t, sequenceWorkflow())
	run := f.enroll(t, "wf-1")

	// Tick 1: trigger pass-through sends the welcome email, cursor at d1.
	result := f.executor.ExecuteStep(context.Background(), run)
	require.Empty(t, result.Error)
	require.Len(t, f.sender.sent, 1)

	// Tick 2: delay parks the run at e2.
	run = f.reload(t, run.ID)
	result = f.executor.ExecuteStep(context.Background(), run)
	require.Empty(t, result.Error)
	assert.Equal(t, models.RunStatusWaiting, result.Status)

	// Tick 3: after the delay elapses, the follow-up goes out and the run ends.
	run = f.reload(t, run.ID)
	result = f.executor.ExecuteStep(context.Background(), run)
	require.Empty(t, result.Error)
	assert.Equal(t, models.RunStatusCompleted, result.Status)

	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, "tpl-welcome", f.sender.sent[0].TemplateID)
	assert.Equal(t, "tpl-followup", f.sender.sent[1].TemplateID)
}
