// Package persistence provides the data storage abstraction for workflows,
// runs, and the CRM records the interpreter reads.
package persistence

import (
	"context"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// Persistence aggregates the repositories a storage backend must provide.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	ContactRepository() ContactRepository
	TemplateRepository() TemplateRepository
	SMTPConfigRepository() SMTPConfigRepository
	SendRecordRepository() SendRecordRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow graph definitions. Read-only to the
// interpreter; writes come from the management API.
type WorkflowRepository interface {
	Workflows(ctx context.Context, organizationID string) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
}

// RunRepository owns all WorkflowRun mutation. The three cursor mutations are
// conditioned on the stored version matching and the status being
// non-terminal; a stale version yields ErrConcurrencyConflict and no write.
// That optimistic check is what makes overlapping scheduler ticks safe.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)

	// DueRuns returns up to limit runs that are running or waiting with
	// next_execution_at unset or elapsed, ordered by next_execution_at
	// ascending with unset first. Stable ordering prevents starvation.
	DueRuns(ctx context.Context, limit int) ([]*models.WorkflowRun, error)

	AdvanceRun(ctx context.Context, runID string, version int, cursor models.RunCursor) error
	CompleteRun(ctx context.Context, runID string, version int) error
	FailRun(ctx context.Context, runID string, version int, reason string) error
}

// ContactRepository reads CRM contacts. Borrowed inputs, never written here.
type ContactRepository interface {
	ContactByID(ctx context.Context, id string) (*models.Contact, error)
}

// TemplateRepository reads email templates.
type TemplateRepository interface {
	TemplateByID(ctx context.Context, id string) (*models.EmailTemplate, error)
}

// SMTPConfigRepository reads outbound transport configurations.
type SMTPConfigRepository interface {
	// ActiveConfig returns the first active SMTP configuration for the
	// organization. Runs are not pinned to a transport: a config swap
	// mid-sequence switches delivery to the new transport.
	ActiveConfig(ctx context.Context, organizationID string) (*models.SMTPConfig, error)
}

// SendRecordRepository stores the durable email send log. Open and click
// marks come from the tracking endpoints, not the interpreter.
type SendRecordRepository interface {
	CreateSendRecord(ctx context.Context, record *models.EmailSendRecord) error
	SendRecordByID(ctx context.Context, id string) (*models.EmailSendRecord, error)
	MarkOpened(ctx context.Context, id string, at time.Time) error
	MarkClicked(ctx context.Context, id string, at time.Time) error
}
