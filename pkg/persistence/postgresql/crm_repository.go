package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
)

// ContactRepository reads CRM contact records.
type ContactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// ContactByID returns a contact by its ID.
func (r *ContactRepository) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , first_name
		  , last_name
		  , email
		  , fields
		  , created_at
		FROM contacts
		WHERE id = $1
	`

	var (
		contact    models.Contact
		fieldsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&contact.ID, &contact.OrganizationID, &contact.FirstName,
		&contact.LastName, &contact.Email, &fieldsJSON, &contact.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, persistence.ErrContactNotFound)
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	err = json.Unmarshal(fieldsJSON, &contact.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact fields: %w", err)
	}

	return &contact, nil
}

// TemplateRepository reads email templates.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// TemplateByID returns an email template by its ID.
func (r *TemplateRepository) TemplateByID(ctx context.Context, id string) (*models.EmailTemplate, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , name
		  , subject
		  , body_html
		  , created_at
		  , updated_at
		FROM email_templates
		WHERE id = $1
	`

	var template models.EmailTemplate

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&template.ID, &template.OrganizationID, &template.Name,
		&template.Subject, &template.BodyHTML,
		&template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %s: %w", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return &template, nil
}

// SMTPConfigRepository reads outbound transport configurations.
type SMTPConfigRepository struct {
	db *sql.DB
}

// NewSMTPConfigRepository creates a new SMTP config repository.
func NewSMTPConfigRepository(db *sql.DB) *SMTPConfigRepository {
	return &SMTPConfigRepository{db: db}
}

// ActiveConfig returns the first active SMTP configuration for an
// organization, oldest first so the selection is stable across polls.
func (r *SMTPConfigRepository) ActiveConfig(ctx context.Context, organizationID string) (*models.SMTPConfig, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , host
		  , port
		  , username
		  , password
		  , from_address
		  , from_name
		  , active
		  , created_at
		FROM smtp_configs
		WHERE organization_id = $1 AND active
		ORDER BY created_at ASC
		LIMIT 1
	`

	var config models.SMTPConfig

	err := r.db.QueryRowContext(ctx, query, organizationID).Scan(
		&config.ID, &config.OrganizationID, &config.Host, &config.Port,
		&config.Username, &config.Password, &config.FromAddress,
		&config.FromName, &config.Active, &config.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", organizationID, persistence.ErrSMTPConfigNotFound)
		}

		return nil, fmt.Errorf("failed to scan smtp config: %w", err)
	}

	return &config, nil
}
