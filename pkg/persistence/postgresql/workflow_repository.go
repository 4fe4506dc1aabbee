package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow graph database operations. Nodes and
// edges are stored as JSONB documents on the workflow row: the interpreter
// always loads the whole graph, never individual nodes.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Workflows returns all workflows for an organization, newest first.
func (r *WorkflowRepository) Workflows(ctx context.Context, organizationID string) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , name
		  , nodes
		  , edges
		  , active
		  , created_at
		  , updated_at
		FROM workflows
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// WorkflowByID returns a workflow by its ID.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , name
		  , nodes
		  , edges
		  , active
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// SaveWorkflow upserts a workflow and its graph.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
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

	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO workflows (id, organization_id, name, nodes, edges, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , nodes = EXCLUDED.nodes
		  , edges = EXCLUDED.edges
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.OrganizationID, workflow.Name,
		nodesJSON, edgesJSON, workflow.Active,
		workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		nodesJSON []byte
		edgesJSON []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.OrganizationID, &workflow.Name,
		&nodesJSON, &edgesJSON, &workflow.Active,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodesJSON, &workflow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &workflow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return &workflow, nil
}
