// Package services holds the application logic between the HTTP layer and
// persistence: workflow lifecycle (draft, publish, delete) and execution
// requests.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/pkg/eventbus"
	"github.com/weftworks/weft/pkg/events"
	"github.com/weftworks/weft/pkg/graph"
	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/registry"
)

var (
	// ErrValidation marks errors the client can fix: bad graph, bad node
	// config, editing a non-draft workflow.
	ErrValidation = errors.New("validation failed")

	// ErrWorkflowNotEditable indicates an attempt to modify a workflow that is
	// not in the draft status.
	ErrWorkflowNotEditable = errors.New("only draft workflows can be modified")
)

// IsValidationError reports whether err is a client-fixable validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Workflow implements the workflow definition lifecycle.
type Workflow struct {
	logger    *slog.Logger
	store     persistence.Persistence
	registry  *registry.Registry
	publisher eventbus.EventPublisher
}

func NewWorkflow(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) *Workflow {
	return &Workflow{
		logger:    logger.With("module", "workflow_service"),
		store:     store,
		registry:  reg,
		publisher: publisher,
	}
}

// Create stores a new draft workflow.
func (s *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	now := time.Now().UTC()

	workflow.ID = uuid.NewString()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Nodes == nil {
		workflow.Nodes = []*models.WorkflowNode{}
	}

	if workflow.Connections == nil {
		workflow.Connections = []*models.Connection{}
	}

	if err := s.store.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID)

	return workflow, nil
}

// FetchByID returns one workflow.
func (s *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return s.store.WorkflowRepository().WorkflowByID(ctx, id)
}

// List returns all workflows, optionally filtered by status.
func (s *Workflow) List(ctx context.Context, status *models.WorkflowStatus) ([]*models.Workflow, error) {
	workflows, err := s.store.WorkflowRepository().Workflows(ctx)
	if err != nil {
		return nil, err
	}

	if status == nil {
		return workflows, nil
	}

	filtered := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Status == *status {
			filtered = append(filtered, workflow)
		}
	}

	return filtered, nil
}

// Update applies changes to a draft workflow. Published and unpublished
// workflows are immutable.
func (s *Workflow) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrWorkflowNotEditable)
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := s.store.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// ReplaceGraph swaps a draft workflow's nodes and connections after validating
// that they form a DAG and that every enabled node's config passes its kind's
// schema.
func (s *Workflow) ReplaceGraph(ctx context.Context, id string, nodes []*models.WorkflowNode, connections []*models.Connection) (*models.Workflow, error) {
	workflow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrWorkflowNotEditable)
	}

	workflow.Nodes = nodes
	workflow.Connections = connections

	if err := s.validateGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return s.Update(ctx, workflow)
}

// Delete removes a workflow. Deleting an absent workflow is not an error.
func (s *Workflow) Delete(ctx context.Context, id string) error {
	return s.store.WorkflowRepository().DeleteWorkflow(ctx, id)
}

// Publish makes a draft workflow executable. Publication is the validation
// gate: the graph must be a DAG and every enabled node's config must pass its
// kind's schema. A WorkflowPublished event tells trigger managers to
// reconcile.
func (s *Workflow) Publish(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return workflow, nil
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrValidation, id, workflow.Status)
	}

	if err := s.validateGraph(ctx, workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := s.store.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := events.WorkflowPublished{
			BaseEvent: events.NewBaseEvent(events.WorkflowPublishedEvent, workflow.ID),
		}
		if err := s.publisher.Publish(ctx, workflow.ID, event); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish workflow event", "workflow_id", id, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Workflow published", "workflow_id", id)

	return workflow, nil
}

func (s *Workflow) validateGraph(ctx context.Context, workflow *models.Workflow) error {
	if _, err := graph.Build(workflow.Nodes, workflow.Connections); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	for _, node := range workflow.Nodes {
		if !node.Enabled {
			continue
		}

		if _, err := s.registry.CreateRunner(ctx, node); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	return nil
}
