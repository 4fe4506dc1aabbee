// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrContactNotFound indicates a contact was not found by the given identifier.
	ErrContactNotFound = errors.New("contact not found")

	// ErrTemplateNotFound indicates an email template was not found.
	ErrTemplateNotFound = errors.New("email template not found")

	// ErrSMTPConfigNotFound indicates no active SMTP configuration exists for the organization.
	ErrSMTPConfigNotFound = errors.New("smtp configuration not found")

	// ErrSendRecordNotFound indicates an email send record was not found.
	ErrSendRecordNotFound = errors.New("email send record not found")

	// ErrConcurrencyConflict indicates an optimistic run update lost the race:
	// the stored version moved on or the run reached a terminal status. The
	// caller skips the run for this tick; nothing was written.
	ErrConcurrencyConflict = errors.New("run was modified concurrently")
)

// RunError wraps run-related errors with operation context.
type RunError struct {
	Op    string // Operation being performed (e.g., "AdvanceRun", "DueRuns")
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsConcurrencyConflict checks if an error indicates a lost optimistic update.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsSendRecordNotFound checks if an error indicates a send record was not found.
func IsSendRecordNotFound(err error) bool {
	return errors.Is(err, ErrSendRecordNotFound)
}
