package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// WorkflowRepository stores workflows with nodes and connections embedded as
// JSONB. Deletion is a soft delete via deleted_at.
type WorkflowRepository struct {
	db *sql.DB
}

func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, name, description, status, nodes, connections, variables, metadata, owner,
	created_at, updated_at, published_at, deleted_at`

// Workflows returns all non-deleted workflows.
func (wr *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := wr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// WorkflowByID returns a workflow by its ID.
func (wr *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	row := wr.db.QueryRowContext(ctx, query, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, err
	}

	return workflow, nil
}

// SaveWorkflow upserts the workflow.
func (wr *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes for workflow %s: %w", workflow.ID, err)
	}

	connections, err := json.Marshal(workflow.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections for workflow %s: %w", workflow.ID, err)
	}

	variables, err := json.Marshal(workflow.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables for workflow %s: %w", workflow.ID, err)
	}

	metadata, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for workflow %s: %w", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, name, description, status, nodes, connections, variables, metadata, owner,
			created_at, updated_at, published_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID, workflow.Name, workflow.Description, workflow.Status,
		nodes, connections, variables, metadata, workflow.Owner,
		workflow.CreatedAt, workflow.UpdatedAt, workflow.PublishedAt, workflow.DeletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow soft deletes a workflow by setting deleted_at.
func (wr *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := wr.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow    models.Workflow
		nodes       []byte
		connections []byte
		variables   []byte
		metadata    []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.Description, &workflow.Status,
		&nodes, &connections, &variables, &metadata, &workflow.Owner,
		&workflow.CreatedAt, &workflow.UpdatedAt, &workflow.PublishedAt, &workflow.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan workflow row: %w", err)
	}

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes for workflow %s: %w", workflow.ID, err)
	}

	if err := json.Unmarshal(connections, &workflow.Connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections for workflow %s: %w", workflow.ID, err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &workflow.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables for workflow %s: %w", workflow.ID, err)
		}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &workflow.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for workflow %s: %w", workflow.ID, err)
		}
	}

	return &workflow, nil
}
