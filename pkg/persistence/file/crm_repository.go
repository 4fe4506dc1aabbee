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

// WorkflowRepository stores workflow graphs as JSON documents. All public
// methods hold the persistence lock; reads go through readWorkflow, which
// expects the lock to be held.
type WorkflowRepository struct {
	persistence *Persistence
}

func (r *WorkflowRepository) readWorkflow(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := r.persistence.readDocument("workflows", id, &workflow)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workflow %s: %w", id, persistence.ErrWorkflowNotFound)
		}

		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Workflows(ctx context.Context, organizationID string) ([]*models.Workflow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	ids, err := r.persistence.documentIDs("workflows")
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.readWorkflow(id)
		if err != nil {
			return nil, err
		}

		if workflow.OrganizationID == organizationID {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.readWorkflow(id)
}

func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	return r.persistence.writeDocument("workflows", workflow.ID, workflow)
}

// ContactRepository reads contacts stored as JSON documents.
type ContactRepository struct {
	persistence *Persistence
}

func (r *ContactRepository) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var contact models.Contact

	err := r.persistence.readDocument("contacts", id, &contact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("contact %s: %w", id, persistence.ErrContactNotFound)
		}

		return nil, err
	}

	return &contact, nil
}

// SaveContact stores a contact. Used by tests and local seeding; the
// interpreter itself never writes contacts.
func (r *ContactRepository) SaveContact(_ context.Context, contact *models.Contact) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if contact.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate contact ID: %w", err)
		}

		contact.ID = id.String()
	}

	return r.persistence.writeDocument("contacts", contact.ID, contact)
}

// TemplateRepository reads email templates stored as JSON documents.
type TemplateRepository struct {
	persistence *Persistence
}

func (r *TemplateRepository) TemplateByID(ctx context.Context, id string) (*models.EmailTemplate, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	var template models.EmailTemplate

	err := r.persistence.readDocument("templates", id, &template)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("template %s: %w", id, persistence.ErrTemplateNotFound)
		}

		return nil, err
	}

	return &template, nil
}

// SaveTemplate stores a template. Used by tests and local seeding.
func (r *TemplateRepository) SaveTemplate(_ context.Context, template *models.EmailTemplate) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	return r.persistence.writeDocument("templates", template.ID, template)
}

// SMTPConfigRepository reads SMTP configs stored as JSON documents.
type SMTPConfigRepository struct {
	persistence *Persistence
}

func (r *SMTPConfigRepository) ActiveConfig(ctx context.Context, organizationID string) (*models.SMTPConfig, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	ids, err := r.persistence.documentIDs("smtp_configs")
	if err != nil {
		return nil, err
	}

	var candidates []*models.SMTPConfig

	for _, id := range ids {
		var config models.SMTPConfig

		err := r.persistence.readDocument("smtp_configs", id, &config)
		if err != nil {
			return nil, err
		}

		if config.OrganizationID == organizationID && config.Active {
			candidates = append(candidates, &config)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("organization %s: %w", organizationID, persistence.ErrSMTPConfigNotFound)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	return candidates[0], nil
}

// SaveConfig stores an SMTP config. Used by tests and local seeding.
func (r *SMTPConfigRepository) SaveConfig(_ context.Context, config *models.SMTPConfig) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if config.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate smtp config ID: %w", err)
		}

		config.ID = id.String()
	}

	if config.CreatedAt.IsZero() {
		config.CreatedAt = time.Now().UTC()
	}

	return r.persistence.writeDocument("smtp_configs", config.ID, config)
}

// SendRecordRepository stores email send records as JSON documents.
type SendRecordRepository struct {
	persistence *Persistence
}

func (r *SendRecordRepository) readRecord(id string) (*models.EmailSendRecord, error) {
	var record models.EmailSendRecord

	err := r.persistence.readDocument("email_sends", id, &record)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("send record %s: %w", id, persistence.ErrSendRecordNotFound)
		}

		return nil, err
	}

	return &record, nil
}

func (r *SendRecordRepository) CreateSendRecord(ctx context.Context, record *models.EmailSendRecord) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate send record ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}

	return r.persistence.writeDocument("email_sends", record.ID, record)
}

// RecordIDs lists stored send record IDs. Used by tests.
func (r *SendRecordRepository) RecordIDs() ([]string, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.documentIDs("email_sends")
}

func (r *SendRecordRepository) SendRecordByID(ctx context.Context, id string) (*models.EmailSendRecord, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.readRecord(id)
}

func (r *SendRecordRepository) MarkOpened(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, id, func(record *models.EmailSendRecord) {
		if record.OpenedAt == nil {
			record.OpenedAt = &at
		}
	})
}

func (r *SendRecordRepository) MarkClicked(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, id, func(record *models.EmailSendRecord) {
		if record.ClickedAt == nil {
			record.ClickedAt = &at
		}
	})
}

func (r *SendRecordRepository) mark(ctx context.Context, id string, apply func(*models.EmailSendRecord)) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	record, err := r.readRecord(id)
	if err != nil {
		return err
	}

	apply(record)

	return r.persistence.writeDocument("email_sends", id, record)
}
