package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dripflow/dripflow/pkg/mailer"
	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence/file"
	"github.com/dripflow/dripflow/pkg/runner"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopSender struct{}

func (noopSender) Send(_ context.Context, req mailer.SendRequest) (*models.EmailSendRecord, error) {
	return &models.EmailSendRecord{ID: "send-1", RunID: req.RunID}, nil
}

func setupTestApp(t *testing.T, triggerToken string) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	executor := runner.NewExecutor(store, noopSender{}, nil, slog.Default())
	scheduler := runner.NewScheduler(store, executor, nil, slog.Default())

	api := NewAPI(slog.Default(), store, scheduler, triggerToken)

	return api.App(), store
}

func seedWorkflow(t *testing.T, store *file.Persistence, active bool) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		OrganizationID: "org-1",
		Name:           "Welcome sequence",
		Active:         active,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "e1", Type: models.NodeTypeEmail, Data: map[string]any{"template_id": "tpl-1"}},
		},
		Edges: []*models.Edge{
			{ID: "edge-1", Source: "t1", Target: "e1"},
		},
	}
	require.NoError(t, store.WorkflowRepository().SaveWorkflow(context.Background(), workflow))

	return workflow
}

func seedContact(t *testing.T, store *file.Persistence) *models.Contact {
	t.Helper()

	contact := &models.Contact{
		ID:             "contact-1",
		OrganizationID: "org-1",
		FirstName:      "Ada",
		Email:          "ada@example.com",
	}
	repo := store.ContactRepository().(*file.ContactRepository)
	require.NoError(t, repo.SaveContact(context.Background(), contact))

	return contact
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()

	err := resp.Body.Close()
	if err != nil {
		t.Logf("Failed to close response body: %v", err)
	}
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Dripflow API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_GetWorkflows(t *testing.T) {
	app, store := setupTestApp(t, "")
	seedWorkflow(t, store, true)

	req := httptest.NewRequest(http.MethodGet, "/workflows?organization_id=org-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workflows []*models.Workflow `json:"workflows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Workflows, 1)
}

func TestAPI_GetWorkflows_RequiresOrganization(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t, "")

	payload := map[string]any{
		"name":            "Welcome sequence",
		"organization_id": "org-1",
		"active":          true,
		"nodes": []map[string]any{
			{"id": "t1", "type": "trigger"},
			{"id": "e1", "type": "email", "data": map[string]any{"template_id": "tpl-1"}},
		},
		"edges": []map[string]any{
			{"id": "edge-1", "source": "t1", "target": "e1"},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.Nodes, 2)
}

func TestAPI_CreateWorkflow_RejectsInvalidGraph(t *testing.T) {
	app, _ := setupTestApp(t, "")

	payload := map[string]any{
		"name":            "Broken sequence",
		"organization_id": "org-1",
		"nodes": []map[string]any{
			{"id": "e1", "type": "email"},
		},
		"edges": []map[string]any{},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "workflow without a trigger node is rejected")
}

func TestAPI_EnrollContact(t *testing.T) {
	app, store := setupTestApp(t, "")
	workflow := seedWorkflow(t, store, true)
	seedContact(t, store)

	body, err := json.Marshal(map[string]string{"contact_id": "contact-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+workflow.ID+"/enroll", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.WorkflowRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.CurrentNodeID)
}

func TestAPI_EnrollContact_InactiveWorkflow(t *testing.T) {
	app, store := setupTestApp(t, "")
	workflow := seedWorkflow(t, store, false)
	seedContact(t, store)

	body, err := json.Marshal(map[string]string{"contact_id": "contact-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+workflow.ID+"/enroll", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ProcessAutomation(t *testing.T) {
	app, store := setupTestApp(t, "")
	workflow := seedWorkflow(t, store, true)
	seedContact(t, store)

	run := &models.WorkflowRun{
		WorkflowID:     workflow.ID,
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusRunning,
	}
	require.NoError(t, store.RunRepository().CreateRun(context.Background(), run))

	req := httptest.NewRequest(http.MethodPost, "/automation/process", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success   bool `json:"success"`
		Processed int  `json:"processed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Processed)
}

func TestAPI_ProcessAutomation_RequiresToken(t *testing.T) {
	app, _ := setupTestApp(t, "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/automation/process", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	authed := httptest.NewRequest(http.MethodPost, "/automation/process", nil)
	authed.Header.Set("Authorization", "Bearer secret-token")

	resp, err = app.Test(authed)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_TrackOpen(t *testing.T) {
	app, store := setupTestApp(t, "")

	record := &models.EmailSendRecord{RunID: "run-1", ContactID: "contact-1", OrganizationID: "org-1"}
	require.NoError(t, store.SendRecordRepository().CreateSendRecord(context.Background(), record))

	req := httptest.NewRequest(http.MethodGet, "/t/o/"+record.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))

	stored, err := store.SendRecordRepository().SendRecordByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OpenedAt)
	assert.WithinDuration(t, time.Now().UTC(), *stored.OpenedAt, 5*time.Second)
}

func TestAPI_TrackOpen_UnknownIDStillServesPixel(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/t/o/unknown", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))
}

func TestAPI_TrackClick(t *testing.T) {
	app, store := setupTestApp(t, "")

	record := &models.EmailSendRecord{RunID: "run-1", ContactID: "contact-1", OrganizationID: "org-1"}
	require.NoError(t, store.SendRecordRepository().CreateSendRecord(context.Background(), record))

	req := httptest.NewRequest(http.MethodGet, "/t/c/"+record.ID+"?url=https%3A%2F%2Fexample.com%2Fpricing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/pricing", resp.Header.Get("Location"))

	stored, err := store.SendRecordRepository().SendRecordByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ClickedAt)
}

func TestAPI_TrackClick_RejectsNonHTTPTarget(t *testing.T) {
	app, _ := setupTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/t/c/send-1?url=javascript%3Aalert%281%29", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetRun(t *testing.T) {
	app, store := setupTestApp(t, "")

	run := &models.WorkflowRun{
		WorkflowID:     "wf-1",
		ContactID:      "contact-1",
		OrganizationID: "org-1",
		Status:         models.RunStatusRunning,
	}
	require.NoError(t, store.RunRepository().CreateRun(context.Background(), run))

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stored models.WorkflowRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
	assert.Equal(t, run.ID, stored.ID)
}
