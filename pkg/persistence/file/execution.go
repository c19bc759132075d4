package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// ExecutionRepository stores each execution as <root>/executions/<id>.json.
type ExecutionRepository struct {
	root string
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// ExecutionByID retrieves an execution record by its ID.
func (er *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	filePath := filepath.Clean(path.Join(er.root, "executions", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.WorkflowExecution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// ExecutionsByWorkflow returns all executions recorded for a workflow.
func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	dir := path.Join(er.root, "executions")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.WorkflowExecution{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, file := range jsonFiles {
		executionID := file[:len(file)-len(".json")]

		execution, err := er.ExecutionByID(ctx, executionID)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// SaveExecution writes the execution record to the filesystem.
func (er *ExecutionRepository) SaveExecution(_ context.Context, execution *models.WorkflowExecution) error {
	dir := path.Join(er.root, "executions")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	return os.WriteFile(path.Join(dir, execution.ID+".json"), data, 0600)
}
