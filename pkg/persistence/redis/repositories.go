package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// WorkflowRepository stores each workflow as JSON under its key plus a set of
// known workflow IDs for listing.
type WorkflowRepository struct {
	client goredis.UniversalClient
}

func (wr *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := wr.client.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow IDs: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.WorkflowByID(ctx, id)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	body, err := wr.client.Get(ctx, workflowKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	pipe := wr.client.TxPipeline()
	pipe.Set(ctx, workflowKeyPrefix+workflow.ID, data, 0)
	pipe.SAdd(ctx, workflowIndexKey, workflow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	pipe := wr.client.TxPipeline()
	pipe.Del(ctx, workflowKeyPrefix+id)
	pipe.SRem(ctx, workflowIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

// ExecutionRepository stores executions as JSON plus a per-workflow index set.
type ExecutionRepository struct {
	client goredis.UniversalClient
}

func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	body, err := er.client.Get(ctx, executionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.WorkflowExecution

	if err := json.Unmarshal(body, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	ids, err := er.client.SMembers(ctx, executionIndexKey+workflowID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for workflow %s: %w", workflowID, err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := er.ExecutionByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (er *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	pipe := er.client.TxPipeline()
	pipe.Set(ctx, executionKeyPrefix+execution.ID, data, 0)
	pipe.SAdd(ctx, executionIndexKey+execution.WorkflowID, execution.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

// SnapshotRepository stores snapshots as JSON. The claim is a separate key
// written with SETNX: the first resumer to set it wins.
type SnapshotRepository struct {
	client goredis.UniversalClient
}

func (sr *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.ExecutionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snapshot.ExecutionID, err)
	}

	pipe := sr.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+snapshot.ExecutionID, data, 0)
	// A re-suspension resets any stale claim.
	pipe.Del(ctx, snapshotKeyPrefix+snapshot.ExecutionID+claimKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewExecutionError("SaveSnapshot", snapshot.ExecutionID, err)
	}

	return nil
}

func (sr *SnapshotRepository) SnapshotByExecutionID(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	body, err := sr.client.Get(ctx, snapshotKeyPrefix+executionID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewExecutionError("SnapshotByExecutionID", executionID, persistence.ErrSnapshotNotFound)
		}

		return nil, fmt.Errorf("failed to fetch snapshot %s: %w", executionID, err)
	}

	var snapshot models.ExecutionSnapshot

	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", executionID, err)
	}

	return &snapshot, nil
}

func (sr *SnapshotRepository) ClaimSnapshot(ctx context.Context, executionID, claimedBy string) (*models.ExecutionSnapshot, error) {
	snapshot, err := sr.SnapshotByExecutionID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	won, err := sr.client.SetNX(ctx, snapshotKeyPrefix+executionID+claimKeySuffix, claimedBy, 0).Result()
	if err != nil {
		return nil, persistence.NewExecutionError("ClaimSnapshot", executionID, err)
	}

	if !won {
		return nil, persistence.NewExecutionError("ClaimSnapshot", executionID, persistence.ErrSnapshotAlreadyClaimed)
	}

	snapshot.ClaimedBy = claimedBy

	return snapshot, nil
}

func (sr *SnapshotRepository) DeleteSnapshot(ctx context.Context, executionID string) error {
	pipe := sr.client.TxPipeline()
	pipe.Del(ctx, snapshotKeyPrefix+executionID)
	pipe.Del(ctx, snapshotKeyPrefix+executionID+claimKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewExecutionError("DeleteSnapshot", executionID, err)
	}

	return nil
}
