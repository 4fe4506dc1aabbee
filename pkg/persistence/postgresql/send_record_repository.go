package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/google/uuid"
)

// SendRecordRepository stores the durable email send log.
type SendRecordRepository struct {
	db *sql.DB
}

// NewSendRecordRepository creates a new send record repository.
func NewSendRecordRepository(db *sql.DB) *SendRecordRepository {
	return &SendRecordRepository{db: db}
}

// CreateSendRecord inserts a send record before dispatch so tracking links in
// the outgoing message can already reference its ID.
func (r *SendRecordRepository) CreateSendRecord(ctx context.Context, record *models.EmailSendRecord) error {
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

	query := `
		INSERT INTO email_sends (id, run_id, contact_id, organization_id, template_id, subject, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.RunID, record.ContactID, record.OrganizationID,
		record.TemplateID, record.Subject, record.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send record: %w", err)
	}

	return nil
}

// SendRecordByID returns a send record by its ID.
func (r *SendRecordRepository) SendRecordByID(ctx context.Context, id string) (*models.EmailSendRecord, error) {
	query := `
		SELECT
			id
		  , run_id
		  , contact_id
		  , organization_id
		  , template_id
		  , subject
		  , sent_at
		  , opened_at
		  , clicked_at
		FROM email_sends
		WHERE id = $1
	`

	var (
		record    models.EmailSendRecord
		openedAt  sql.NullTime
		clickedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.RunID, &record.ContactID, &record.OrganizationID,
		&record.TemplateID, &record.Subject, &record.SentAt, &openedAt, &clickedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("send record %s: %w", id, persistence.ErrSendRecordNotFound)
		}

		return nil, fmt.Errorf("failed to scan send record: %w", err)
	}

	if openedAt.Valid {
		t := openedAt.Time
		record.OpenedAt = &t
	}

	if clickedAt.Valid {
		t := clickedAt.Time
		record.ClickedAt = &t
	}

	return &record, nil
}

// MarkOpened records the first open; later opens keep the original timestamp.
func (r *SendRecordRepository) MarkOpened(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, "opened_at", id, at)
}

// MarkClicked records the first click; later clicks keep the original timestamp.
func (r *SendRecordRepository) MarkClicked(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, "clicked_at", id, at)
}

func (r *SendRecordRepository) mark(ctx context.Context, column, id string, at time.Time) error {
	query := fmt.Sprintf(
		"UPDATE email_sends SET %s = $1 WHERE id = $2 AND %s IS NULL", column, column,
	)

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark send record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark send record: %w", err)
	}

	// Already marked is not an error; only a missing record is.
	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM email_sends WHERE id = $1)", id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to mark send record: %w", err)
		}

		if !exists {
			return fmt.Errorf("send record %s: %w", id, persistence.ErrSendRecordNotFound)
		}
	}

	return nil
}
