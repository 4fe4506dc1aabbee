package models

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"   // Due now, advancing node by node
	RunStatusWaiting   RunStatus = "waiting"   // Parked until NextExecutionAt
	RunStatusCompleted RunStatus = "completed" // Terminal, reached a node with no outgoing edge
	RunStatusFailed    RunStatus = "failed"    // Terminal, LastError holds the reason
)

// Terminal reports whether the status permits no further mutation.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// WorkflowRun is one contact's execution cursor through one workflow.
// CurrentNodeID nil means the run has not started; NextExecutionAt nil means
// due now. Version backs the optimistic update check in the run store.
type WorkflowRun struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"     validate:"required"`
	ContactID       string     `json:"contact_id"      validate:"required"`
	OrganizationID  string     `json:"organization_id" validate:"required"`
	CurrentNodeID   *string    `json:"current_node_id,omitempty"`
	Status          RunStatus  `json:"status"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RunCursor is the mutable slice of a run the step executor writes back.
type RunCursor struct {
	CurrentNodeID   *string
	Status          RunStatus
	NextExecutionAt *time.Time
	Attempts        int
	LastError       string
}
