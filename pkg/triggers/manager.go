// Package triggers runs the trigger side of the system: it watches the
// published workflows' trigger nodes and requests executions on the event bus
// when one of them fires. Webhook triggers are not managed here; they are
// served by the API's webhook endpoint.
package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/weftworks/weft/pkg/eventbus"
	"github.com/weftworks/weft/pkg/events"
	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/triggers/kafka"
	"github.com/weftworks/weft/pkg/triggers/schedule"
)

// Factory builds a trigger instance for one trigger node of a workflow.
type Factory func(logger *slog.Logger, workflowID string, node *models.WorkflowNode) (protocol.Trigger, error)

// Manager owns the running trigger instances. Reload stops and restarts them
// against the current set of published workflows; the worker calls it on
// startup and whenever a workflow is published.
type Manager struct {
	logger    *slog.Logger
	store     persistence.Persistence
	publisher eventbus.EventPublisher
	factories map[string]Factory

	mu      sync.Mutex
	running map[string]protocol.Trigger // key: workflowID/nodeID
}

func NewManager(logger *slog.Logger, store persistence.Persistence, publisher eventbus.EventPublisher) *Manager {
	return &Manager{
		logger:    logger.With("module", "trigger_manager"),
		store:     store,
		publisher: publisher,
		factories: map[string]Factory{
			string(models.CategoryTypeTrigger) + ":" + models.TriggerSubtypeScheduler: func(logger *slog.Logger, workflowID string, node *models.WorkflowNode) (protocol.Trigger, error) {
				return schedule.NewTrigger(logger, workflowID, node.ID, node.Config)
			},
			string(models.CategoryTypeTrigger) + ":" + models.TriggerSubtypeKafka: func(logger *slog.Logger, workflowID string, node *models.WorkflowNode) (protocol.Trigger, error) {
				return kafka.NewTrigger(logger, workflowID, node.ID, node.Config)
			},
		},
	}
}

// RegisterFactory adds or replaces the factory for a trigger node kind.
func (m *Manager) RegisterFactory(kind string, factory Factory) {
	m.factories[kind] = factory
}

// Start brings up triggers for every published workflow.
func (m *Manager) Start(ctx context.Context) error {
	workflows, err := m.store.WorkflowRepository().Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running == nil {
		m.running = make(map[string]protocol.Trigger)
	}

	started := 0

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusPublished {
			continue
		}

		started += m.startWorkflowTriggers(ctx, workflow)
	}

	m.logger.InfoContext(ctx, "Trigger manager started", "triggers", started)

	return nil
}

// startWorkflowTriggers starts every managed trigger node of one workflow.
// Callers hold m.mu.
func (m *Manager) startWorkflowTriggers(ctx context.Context, workflow *models.Workflow) int {
	started := 0

	for _, node := range workflow.TriggerNodes() {
		factory, ok := m.factories[node.Kind()]
		if !ok {
			// Webhook triggers fire through the API, nothing to run here.
			m.logger.DebugContext(ctx, "No managed trigger for node kind",
				"workflow_id", workflow.ID, "node_id", node.ID, "kind", node.Kind())

			continue
		}

		trigger, err := factory(m.logger, workflow.ID, node)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to create trigger",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)

			continue
		}

		if err := trigger.Start(ctx, m.requestExecution(node.Kind())); err != nil {
			m.logger.ErrorContext(ctx, "Failed to start trigger",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)

			continue
		}

		m.running[workflow.ID+"/"+node.ID] = trigger
		started++
	}

	return started
}

// requestExecution builds the callback a managed trigger fires with. It
// publishes an ExecutionRequested event; a worker picks it up and runs the
// execution.
func (m *Manager) requestExecution(triggerKind string) protocol.TriggerCallback {
	return func(ctx context.Context, workflowID string, data map[string]any) error {
		executionID := "exec-" + uuid.NewString()[:8]

		event := events.ExecutionRequested{
			BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
			ExecutionID: executionID,
			TriggerKind: triggerKind,
			TriggerData: data,
		}

		if err := m.publisher.Publish(ctx, workflowID, event); err != nil {
			return fmt.Errorf("failed to publish execution request: %w", err)
		}

		m.logger.InfoContext(ctx, "Execution requested",
			"workflow_id", workflowID, "execution_id", executionID, "trigger_kind", triggerKind)

		return nil
	}
}

// Reload stops all running triggers and starts them again from the current
// persisted state.
func (m *Manager) Reload(ctx context.Context) error {
	m.Stop(ctx)

	return m.Start(ctx)
}

// Stop halts every running trigger.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, trigger := range m.running {
		if err := trigger.Stop(ctx); err != nil {
			m.logger.WarnContext(ctx, "Failed to stop trigger", "trigger", key, "error", err)
		}
	}

	m.running = make(map[string]protocol.Trigger)
	m.logger.InfoContext(ctx, "All triggers stopped")
}
