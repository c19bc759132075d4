// Package persistence provides the data storage abstraction for workflows,
// executions and suspension snapshots.
package persistence

import (
	"context"

	"github.com/weftworks/weft/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository stores workflow execution records.
type ExecutionRepository interface {
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
}

// SnapshotRepository stores suspension snapshots of executions parked on
// human-interaction nodes. ClaimSnapshot must be atomic across processes:
// exactly one caller wins the claim for a given execution, every other
// concurrent caller gets ErrSnapshotAlreadyClaimed.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snapshot *models.ExecutionSnapshot) error
	SnapshotByExecutionID(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error)
	ClaimSnapshot(ctx context.Context, executionID, claimedBy string) (*models.ExecutionSnapshot, error)
	DeleteSnapshot(ctx context.Context, executionID string) error
}

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	SnapshotRepository() SnapshotRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
