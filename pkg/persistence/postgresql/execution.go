package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// ExecutionRepository stores execution records with per-node executions and
// the completion sequence embedded as JSONB.
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `id, workflow_id, status, trigger_data, start_time, end_time,
	node_executions, execution_sequence, current_node_id, error`

// ExecutionByID returns an execution record by its ID.
func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, err
	}

	return execution, nil
}

// ExecutionsByWorkflow returns all executions of a workflow, newest first.
func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE workflow_id = $1 ORDER BY start_time DESC`

	rows, err := er.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions for workflow %s: %w", workflowID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

// SaveExecution upserts the execution record.
func (er *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data for execution %s: %w", execution.ID, err)
	}

	nodeExecutions, err := json.Marshal(execution.NodeExecutions)
	if err != nil {
		return fmt.Errorf("failed to marshal node executions for execution %s: %w", execution.ID, err)
	}

	sequence, err := json.Marshal(execution.ExecutionSequence)
	if err != nil {
		return fmt.Errorf("failed to marshal execution sequence for execution %s: %w", execution.ID, err)
	}

	var startTime any
	if !execution.StartTime.IsZero() {
		startTime = execution.StartTime
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, status, trigger_data, start_time, end_time,
			node_executions, execution_sequence, current_node_id, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			node_executions = EXCLUDED.node_executions,
			execution_sequence = EXCLUDED.execution_sequence,
			current_node_id = EXCLUDED.current_node_id,
			error = EXCLUDED.error,
			updated_at = NOW()
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.Status, triggerData,
		startTime, execution.EndTime, nodeExecutions, sequence,
		execution.CurrentNodeID, execution.Error,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution      models.WorkflowExecution
		triggerData    []byte
		nodeExecutions []byte
		sequence       []byte
		startTime      sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.Status, &triggerData,
		&startTime, &execution.EndTime, &nodeExecutions, &sequence,
		&execution.CurrentNodeID, &execution.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan execution row: %w", err)
	}

	if startTime.Valid {
		execution.StartTime = startTime.Time
	}

	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data for execution %s: %w", execution.ID, err)
		}
	}

	if err := json.Unmarshal(nodeExecutions, &execution.NodeExecutions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node executions for execution %s: %w", execution.ID, err)
	}

	if err := json.Unmarshal(sequence, &execution.ExecutionSequence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution sequence for execution %s: %w", execution.ID, err)
	}

	return &execution, nil
}
