package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftworks/weft/pkg/engine"
	"github.com/weftworks/weft/pkg/eventbus"
	"github.com/weftworks/weft/pkg/events"
	"github.com/weftworks/weft/pkg/otelhelper"
	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/transform"
	"github.com/weftworks/weft/pkg/triggers"
)

// WorkerManager consumes execution requests from the event bus, runs them
// through the engine and keeps the workflow triggers alive.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   *engine.Engine
	eventBus eventbus.EventBus
	triggers *triggers.Manager
	tracer   trace.Tracer
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	reg *registry.Registry,
	converter *transform.Converter,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "worker_manager"),
		engine:   engine.NewEngine(logger, store, reg, converter, eventBus, id),
		eventBus: eventBus,
		triggers: triggers.NewManager(logger, store, eventBus),
		tracer:   otel.Tracer("weft-worker"),
	}
}

// Start registers the event handlers, subscribes to the bus, starts the
// trigger manager and blocks until the process receives SIGINT or SIGTERM.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ResumeRequestedEvent, w.handleResumeRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.WorkflowPublishedEvent, w.handleWorkflowPublished); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	if err := w.triggers.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started, waiting for execution requests")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	w.logger.InfoContext(ctx, "Shutting down worker")
	w.triggers.Stop(ctx)

	return nil
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.WarnContext(ctx, "Discarding event with unexpected payload type", "event", event)

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.execute",
		attribute.String(otelhelper.WorkflowIDKey, request.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, request.ExecutionID),
		attribute.String(otelhelper.EventIDKey, request.ID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", request.WorkflowID, "execution_id", request.ExecutionID)
	logger.InfoContext(ctx, "Execution requested", "trigger_kind", request.TriggerKind)

	execution, err := w.engine.StartExecution(ctx, request.ExecutionID, request.WorkflowID, request.TriggerData)
	if err != nil {
		otelhelper.SetError(span, err)

		// A missing or unpublished workflow will not become runnable by
		// retrying the message.
		if errors.Is(err, engine.ErrWorkflowNotExecutable) || persistence.IsWorkflowNotFound(err) {
			logger.ErrorContext(ctx, "Dropping unrunnable execution request", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Execution failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution finished", "status", execution.Status)

	return nil
}

func (w *WorkerManager) handleResumeRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ResumeRequested)
	if !ok {
		w.logger.WarnContext(ctx, "Discarding event with unexpected payload type", "event", event)

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.resume",
		attribute.String(otelhelper.WorkflowIDKey, request.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, request.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, request.NodeID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("execution_id", request.ExecutionID, "node_id", request.NodeID)
	logger.InfoContext(ctx, "Resume requested", "resumed_by", request.ResumedBy)

	execution, err := w.engine.ResumeExecution(ctx, request.ExecutionID, request.Response, request.ResumedBy)
	if err != nil {
		// Another worker won the snapshot claim; the resume is in good hands.
		if persistence.IsSnapshotAlreadyClaimed(err) {
			logger.InfoContext(ctx, "Resume claimed by another worker")

			return nil
		}

		otelhelper.SetError(span, err)

		if persistence.IsSnapshotNotFound(err) || persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "Dropping resume request without a matching suspension", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Resume failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution resumed", "status", execution.Status)

	return nil
}

func (w *WorkerManager) handleWorkflowPublished(ctx context.Context, event any) error {
	published, ok := event.(*events.WorkflowPublished)
	if !ok {
		w.logger.WarnContext(ctx, "Discarding event with unexpected payload type", "event", event)

		return nil
	}

	w.logger.InfoContext(ctx, "Workflow published, reloading triggers", "workflow_id", published.WorkflowID)

	return w.triggers.Reload(ctx)
}
