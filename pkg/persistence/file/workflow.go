package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// WorkflowRepository stores each workflow as <root>/workflows/<id>.json.
type WorkflowRepository struct {
	root string
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

// Workflows returns all workflows from the filesystem.
func (wr *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	dir := path.Join(wr.root, "workflows")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Workflow{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-len(".json")]

		workflow, err := wr.WorkflowByID(ctx, workflowID)
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

// WorkflowByID retrieves a workflow by its ID.
func (wr *WorkflowRepository) WorkflowByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	filePath := filepath.Clean(path.Join(wr.root, "workflows", workflowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("WorkflowByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return &workflow, nil
}

// SaveWorkflow writes the workflow to the filesystem, stamping timestamps.
func (wr *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	dir := path.Join(wr.root, "workflows")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	return os.WriteFile(path.Join(dir, workflow.ID+".json"), data, 0600)
}

// DeleteWorkflow removes a workflow by its ID. Deleting an absent workflow
// is not an error.
func (wr *WorkflowRepository) DeleteWorkflow(_ context.Context, id string) error {
	err := os.Remove(path.Join(wr.root, "workflows", id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
