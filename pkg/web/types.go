// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/dripflow/dripflow/pkg/runner"

// ProcessRequest is the optional body of a trigger invocation.
type ProcessRequest struct {
	BatchLimit int `json:"batch_limit" validate:"omitempty,min=1,max=500"`
}

// ProcessResponse reports one scheduler invocation back to the cron caller.
type ProcessResponse struct {
	Success   bool                `json:"success"`
	Processed int                 `json:"processed"`
	Details   []runner.StepResult `json:"details"`
}

// CreateWorkflowRequest is the request body for creating a workflow graph.
// Nodes and edges arrive as raw documents and are schema-validated before the
// workflow model is built.
type CreateWorkflowRequest struct {
	Name           string           `json:"name"            validate:"required,min=3"`
	OrganizationID string           `json:"organization_id" validate:"required"`
	Active         bool             `json:"active"`
	Nodes          []map[string]any `json:"nodes"`
	Edges          []map[string]any `json:"edges"`
}

// EnrollRequest enrolls a contact into a workflow.
type EnrollRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
}
