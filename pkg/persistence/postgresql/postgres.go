// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	runRepo        *RunRepository
	contactRepo    *ContactRepository
	templateRepo   *TemplateRepository
	smtpConfigRepo *SMTPConfigRepository
	sendRecordRepo *SendRecordRepository
}

// NewPersistence opens the database, runs migrations, and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		workflowRepo:   NewWorkflowRepository(database, logger),
		runRepo:        NewRunRepository(database, logger),
		contactRepo:    NewContactRepository(database),
		templateRepo:   NewTemplateRepository(database),
		smtpConfigRepo: NewSMTPConfigRepository(database),
		sendRecordRepo: NewSendRecordRepository(database),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) ContactRepository() persistence.ContactRepository {
	return p.contactRepo
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) SMTPConfigRepository() persistence.SMTPConfigRepository {
	return p.smtpConfigRepo
}

func (p *Persistence) SendRecordRepository() persistence.SendRecordRepository {
	return p.sendRecordRepo
}
