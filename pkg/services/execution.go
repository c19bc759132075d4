package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/weftworks/weft/pkg/eventbus"
	"github.com/weftworks/weft/pkg/events"
	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

var (
	// ErrWorkflowNotExecutable indicates a start request for a workflow that
	// is not published.
	ErrWorkflowNotExecutable = errors.New("workflow is not published")

	// ErrExecutionNotWaiting indicates a resume request for an execution that
	// is not suspended on a human-interaction node.
	ErrExecutionNotWaiting = errors.New("execution is not waiting for input")
)

// Execution accepts start and resume requests and hands them to the workers
// through the event bus. The API never runs the engine itself.
type Execution struct {
	logger    *slog.Logger
	store     persistence.Persistence
	publisher eventbus.EventPublisher
}

func NewExecution(logger *slog.Logger, store persistence.Persistence, publisher eventbus.EventPublisher) *Execution {
	return &Execution{
		logger:    logger.With("module", "execution_service"),
		store:     store,
		publisher: publisher,
	}
}

// Request validates that the workflow is executable and publishes an
// ExecutionRequested event. It returns the execution ID the worker will use.
func (s *Execution) Request(ctx context.Context, workflowID, triggerKind string, triggerData map[string]any) (string, error) {
	workflow, err := s.store.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return "", fmt.Errorf("%w: %w: workflow %s is %s", ErrValidation, ErrWorkflowNotExecutable, workflowID, workflow.Status)
	}

	executionID := "exec-" + uuid.NewString()[:8]

	event := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
		ExecutionID: executionID,
		TriggerKind: triggerKind,
		TriggerData: triggerData,
	}

	if err := s.publisher.Publish(ctx, workflowID, event); err != nil {
		return "", fmt.Errorf("failed to publish execution request: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution requested",
		"workflow_id", workflowID, "execution_id", executionID, "trigger_kind", triggerKind)

	return executionID, nil
}

// RequestResume validates that the execution is suspended and publishes a
// ResumeRequested event carrying the human response.
func (s *Execution) RequestResume(ctx context.Context, executionID string, response map[string]any, resumedBy string) error {
	execution, err := s.store.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusWaitingForHuman {
		return fmt.Errorf("%w: %w: execution %s is %s", ErrValidation, ErrExecutionNotWaiting, executionID, execution.Status)
	}

	event := events.ResumeRequested{
		BaseEvent:   events.NewBaseEvent(events.ResumeRequestedEvent, execution.WorkflowID),
		ExecutionID: executionID,
		NodeID:      execution.CurrentNodeID,
		Response:    response,
		ResumedBy:   resumedBy,
	}

	if err := s.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		return fmt.Errorf("failed to publish resume request: %w", err)
	}

	s.logger.InfoContext(ctx, "Resume requested",
		"execution_id", executionID, "node_id", execution.CurrentNodeID)

	return nil
}

// FetchByID returns one execution.
func (s *Execution) FetchByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.store.ExecutionRepository().ExecutionByID(ctx, id)
}

// ListByWorkflow returns all executions of a workflow.
func (s *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return s.store.ExecutionRepository().ExecutionsByWorkflow(ctx, workflowID)
}

// Snapshot returns the suspension snapshot of a waiting execution, carrying
// the pending prompt.
func (s *Execution) Snapshot(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	return s.store.SnapshotRepository().SnapshotByExecutionID(ctx, executionID)
}
