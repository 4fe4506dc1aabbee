// Package mailer is the email side-effect adapter: it renders a template
// against contact fields, logs a durable send record, and dispatches via the
// organization's SMTP transport.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/secrets"
	"github.com/dripflow/dripflow/pkg/template"
)

// SendRequest identifies what to send and on whose behalf.
type SendRequest struct {
	TemplateID     string
	Contact        *models.Contact
	OrganizationID string
	RunID          string
}

// Adapter sends sequence email. It does not retry; retry policy belongs to
// the scheduler tier.
type Adapter struct {
	templates   persistence.TemplateRepository
	smtpConfigs persistence.SMTPConfigRepository
	sendRecords persistence.SendRecordRepository
	transport   Transport
	cipher      *secrets.Cipher
	baseURL     string // public base URL for tracking links, no trailing slash
	logger      *slog.Logger
}

// NewAdapter wires the adapter against its stores and transport.
func NewAdapter(
	store persistence.Persistence,
	transport Transport,
	cipher *secrets.Cipher,
	baseURL string,
	logger *slog.Logger,
) *Adapter {
	return &Adapter{
		templates:   store.TemplateRepository(),
		smtpConfigs: store.SMTPConfigRepository(),
		sendRecords: store.SendRecordRepository(),
		transport:   transport,
		cipher:      cipher,
		baseURL:     baseURL,
		logger:      logger.With("module", "mailer"),
	}
}

// Send renders and dispatches one email, returning the created send record.
func (a *Adapter) Send(ctx context.Context, req SendRequest) (*models.EmailSendRecord, error) {
	if req.Contact == nil {
		return nil, fmt.Errorf("send request has no contact")
	}

	tmpl, err := a.templates.TemplateByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	config, err := a.smtpConfigs.ActiveConfig(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load smtp config: %w", err)
	}

	password, err := a.cipher.Decrypt(config.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt smtp credential: %w", err)
	}

	fields := req.Contact.TemplateFields()
	subject := template.Render(tmpl.Subject, fields)
	body := template.Render(tmpl.BodyHTML, fields)

	record := &models.EmailSendRecord{
		RunID:          req.RunID,
		ContactID:      req.Contact.ID,
		OrganizationID: req.OrganizationID,
		TemplateID:     req.TemplateID,
		Subject:        subject,
	}

	// The record is created before dispatch so the tracking URLs embedded in
	// the body can reference its ID.
	err = a.sendRecords.CreateSendRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create send record: %w", err)
	}

	if a.baseURL != "" {
		body = injectTracking(body, a.baseURL, record.ID)
	}

	err = a.transport.Dispatch(ctx, config, password, &Message{
		FromAddress: config.FromAddress,
		FromName:    config.FromName,
		To:          req.Contact.Email,
		Subject:     subject,
		BodyHTML:    body,
	})
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Email dispatched",
		"run_id", req.RunID,
		"template_id", req.TemplateID,
		"send_id", record.ID,
	)

	return record, nil
}

// Close releases the underlying transport pool.
func (a *Adapter) Close() error {
	return a.transport.Close()
}
