// Package web provides the HTTP surface: the cron trigger endpoint, tracking
// callbacks, and a small workflow management API.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/runner"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type APIHandlers struct {
	store        persistence.Persistence
	scheduler    *runner.Scheduler
	validator    *validator.Validate
	triggerToken string // empty disables the bearer check
}

func NewAPIHandlers(
	store persistence.Persistence,
	scheduler *runner.Scheduler,
	validator *validator.Validate,
	triggerToken string,
) *APIHandlers {
	return &APIHandlers{
		store:        store,
		scheduler:    scheduler,
		validator:    validator,
		triggerToken: triggerToken,
	}
}

// ProcessAutomation is the external trigger invocation: it runs one scheduler
// batch and reports the per-run results.
func (h *APIHandlers) ProcessAutomation(c fiber.Ctx) error {
	if !h.authorized(c) {
		return unauthorized(c)
	}

	var req ProcessRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	batch, err := h.scheduler.ProcessDueRuns(c.Context(), req.BatchLimit)
	if err != nil {
		// Failing to fetch the due list is infrastructure trouble the
		// invoking cron must see.
		return internalError(c, err)
	}

	return c.JSON(ProcessResponse{
		Success:   true,
		Processed: batch.Processed,
		Details:   batch.Details,
	})
}

func (h *APIHandlers) authorized(c fiber.Ctx) bool {
	if h.triggerToken == "" {
		return true
	}

	header := c.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.triggerToken)) == 1
}

// TrackOpen serves the open pixel and records the first open.
func (h *APIHandlers) TrackOpen(c fiber.Ctx) error {
	sendID := c.Params("sendId")
	if sendID == "" {
		return badRequest(c, "Send ID is required")
	}

	err := h.store.SendRecordRepository().MarkOpened(c.Context(), sendID, time.Now().UTC())
	if err != nil && !persistence.IsSendRecordNotFound(err) {
		return internalError(c, err)
	}

	// Unknown IDs still get the pixel: a broken image in an email helps nobody.
	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")

	return c.Send(trackingPixel)
}

// TrackClick records the first click and redirects to the original link.
func (h *APIHandlers) TrackClick(c fiber.Ctx) error {
	sendID := c.Params("sendId")
	if sendID == "" {
		return badRequest(c, "Send ID is required")
	}

	target := c.Query("url")

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return badRequest(c, "url must be an absolute http(s) URL")
	}

	err = h.store.SendRecordRepository().MarkClicked(c.Context(), sendID, time.Now().UTC())
	if err != nil && !persistence.IsSendRecordNotFound(err) {
		return internalError(c, err)
	}

	return c.Redirect().Status(fiber.StatusFound).To(target)
}

// GetWorkflows lists an organization's workflows.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id is required")
	}

	workflows, err := h.store.WorkflowRepository().Workflows(c.Context(), organizationID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

// GetWorkflow returns one workflow graph.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.store.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

// CreateWorkflow validates and stores a workflow graph.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition := map[string]any{
		"name":            req.Name,
		"organization_id": req.OrganizationID,
		"active":          req.Active,
		"nodes":           sliceOfAny(req.Nodes),
		"edges":           sliceOfAny(req.Edges),
	}

	if err := models.ValidateWorkflowDefinition(definition); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := workflowFromRequest(&req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := models.ValidateGraph(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.WorkflowRepository().SaveWorkflow(c.Context(), workflow); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// EnrollContact creates a fresh run for a contact in a workflow.
func (h *APIHandlers) EnrollContact(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.store.WorkflowRepository().WorkflowByID(c.Context(), workflowID)
	if err != nil {
		return handleStoreError(c, err)
	}

	if !workflow.Active {
		return badRequest(c, "workflow is not active")
	}

	contact, err := h.store.ContactRepository().ContactByID(c.Context(), req.ContactID)
	if err != nil {
		return notFound(c, "contact not found")
	}

	run := &models.WorkflowRun{
		WorkflowID:     workflow.ID,
		ContactID:      contact.ID,
		OrganizationID: workflow.OrganizationID,
		Status:         models.RunStatusRunning,
	}

	if err := h.store.RunRepository().CreateRun(c.Context(), run); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

// GetRun exposes a run's cursor for the operator-facing status view.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.store.RunRepository().RunByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(run)
}

// HealthCheck reports store health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.store.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func workflowFromRequest(req *CreateWorkflowRequest) (*models.Workflow, error) {
	workflow := &models.Workflow{
		Name:           req.Name,
		OrganizationID: req.OrganizationID,
		Active:         req.Active,
	}

	// Round-trip through JSON so node and edge documents decode with the
	// same rules the store uses.
	raw, err := json.Marshal(fiber.Map{"nodes": req.Nodes, "edges": req.Edges})
	if err != nil {
		return nil, err
	}

	var graph struct {
		Nodes []*models.Node `json:"nodes"`
		Edges []*models.Edge `json:"edges"`
	}

	if err := json.Unmarshal(raw, &graph); err != nil {
		return nil, err
	}

	workflow.Nodes = graph.Nodes
	workflow.Edges = graph.Edges

	return workflow, nil
}

func sliceOfAny(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}

	return out
}
