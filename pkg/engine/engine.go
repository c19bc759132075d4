// Package engine drives workflow executions: it dispatches ready nodes
// concurrently, shapes and propagates their outputs along the graph's edges,
// accumulates fan-in inputs, halts on failure and suspends on human-input
// waits.
package engine

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
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/transform"
)

// ErrWorkflowNotExecutable indicates a start request for a workflow that is
// not in the published status.
var ErrWorkflowNotExecutable = errors.New("workflow is not published")

// Engine executes workflows. One Engine serves many executions; all per-run
// state lives in the executionRun created for each of them.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	converter   *transform.Converter
	publisher   eventbus.EventPublisher
	workerID    string
}

func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	converter *transform.Converter,
	publisher eventbus.EventPublisher,
	workerID string,
) *Engine {
	return &Engine{
		logger:      logger.With("module", "engine", "worker_id", workerID),
		persistence: store,
		registry:    reg,
		converter:   converter,
		publisher:   publisher,
		workerID:    workerID,
	}
}

// StartExecution runs a new execution of a published workflow to completion,
// failure or suspension. An empty executionID is replaced with a generated
// one. The returned execution reflects the final persisted state.
func (e *Engine) StartExecution(ctx context.Context, executionID, workflowID string, triggerData map[string]any) (*models.WorkflowExecution, error) {
	if executionID == "" {
		executionID = "exec-" + uuid.NewString()[:8]
	}

	workflow, err := e.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkflowNotExecutable, workflowID, workflow.Status)
	}

	workflowGraph, err := graph.Build(workflow.Nodes, workflow.Connections)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph for workflow %s: %w", workflowID, err)
	}

	execution := models.NewWorkflowExecution(executionID, workflowID, triggerData)
	execution.Begin()

	if err := e.persistence.ExecutionRepository().SaveExecution(ctx, execution); err != nil {
		return nil, err
	}

	e.publishEvent(ctx, workflowID, events.ExecutionStarted{
		BaseEvent:    e.baseEvent(events.ExecutionStartedEvent, workflowID),
		ExecutionID:  executionID,
		WorkflowName: workflow.Name,
		TriggerData:  triggerData,
	})

	run := e.newRun(workflow, workflowGraph, execution)

	if triggerData == nil {
		triggerData = map[string]any{}
	}

	for _, rootID := range workflowGraph.Roots() {
		run.pending.deliver(rootID, models.TriggerInputKey, triggerData)
	}

	return execution, run.loop(ctx)
}

// ResumeExecution continues a suspended execution with a human response. The
// snapshot claim is atomic: when several workers race to resume the same
// execution, exactly one proceeds and the rest get ErrSnapshotAlreadyClaimed.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string, response map[string]any, resumedBy string) (*models.WorkflowExecution, error) {
	snapshot, err := e.persistence.SnapshotRepository().ClaimSnapshot(ctx, executionID, e.workerID)
	if err != nil {
		return nil, err
	}

	execution, err := e.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	workflow, err := e.persistence.WorkflowRepository().WorkflowByID(ctx, snapshot.WorkflowID)
	if err != nil {
		return nil, err
	}

	workflowGraph, err := graph.Build(workflow.Nodes, workflow.Connections)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph for workflow %s: %w", snapshot.WorkflowID, err)
	}

	run := e.newRun(workflow, workflowGraph, execution)
	run.pending.load(snapshot.PendingInputs)
	run.pending.deliver(snapshot.WaitingNodeID, models.ResponseInputKey, response)

	// Nodes that already ran must not run again.
	for nodeID, nodeExecution := range execution.NodeExecutions {
		switch nodeExecution.Status {
		case models.NodeStatusCompleted, models.NodeStatusFailed, models.NodeStatusSkipped:
			run.dispatched[nodeID] = true
		}
	}

	execution.ResumeFrom(snapshot.WaitingNodeID)
	execution.NodeExecution(snapshot.WaitingNodeID).Resume()

	if err := e.persistence.ExecutionRepository().SaveExecution(ctx, execution); err != nil {
		return nil, err
	}

	if err := e.persistence.SnapshotRepository().DeleteSnapshot(ctx, executionID); err != nil {
		e.logger.WarnContext(ctx, "Failed to delete claimed snapshot", "execution_id", executionID, "error", err)
	}

	e.publishEvent(ctx, snapshot.WorkflowID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, snapshot.WorkflowID),
		ExecutionID: executionID,
		NodeID:      snapshot.WaitingNodeID,
		ResumedBy:   resumedBy,
	})

	return execution, run.loop(ctx)
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = e.workerID

	return base
}

func (e *Engine) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// nodeResult is what an invocation goroutine reports back to the run loop.
// An interim result (retrying=true) marks a transient failure between
// attempts; the final result follows on the same channel.
type nodeResult struct {
	nodeID    string
	raw       map[string]any
	rawInputs map[string]*models.OneOrMany
	retries   int
	retrying  bool
	duration  time.Duration
	err       error
}

// executionRun is the per-execution state of the scheduler loop. All fields
// are owned by the loop goroutine; invocation goroutines communicate only
// through the results channel.
type executionRun struct {
	engine     *Engine
	workflow   *models.Workflow
	graph      *graph.WorkflowGraph
	execution  *models.WorkflowExecution
	pending    *pendingInputs
	dispatched map[string]bool

	results  chan nodeResult
	inflight int

	halted        bool
	canceled      bool
	timedOut      bool
	failedNodeID  string
	failedMessage string
	waitingNodeID string
	waitingPrompt map[string]any
}

func (e *Engine) newRun(workflow *models.Workflow, workflowGraph *graph.WorkflowGraph, execution *models.WorkflowExecution) *executionRun {
	return &executionRun{
		engine:     e,
		workflow:   workflow,
		graph:      workflowGraph,
		execution:  execution,
		pending:    newPendingInputs(workflowGraph.TopoOrder()),
		dispatched: make(map[string]bool, workflowGraph.Len()),
		results:    make(chan nodeResult),
	}
}

// loop drives the execution until nothing is ready and nothing is in flight,
// then settles the final status. Suspension is a normal outcome, not an
// error.
func (r *executionRun) loop(ctx context.Context) error {
	for {
		r.dispatchReady(ctx)

		if r.inflight == 0 {
			break
		}

		select {
		case result := <-r.results:
			if result.retrying {
				r.noteRetry(ctx, result)

				continue
			}

			r.inflight--
			r.handleResult(ctx, result)
		case <-ctx.Done():
			r.canceled = true
			r.halted = true

			// In-flight runners see the same ctx; drain their results so
			// their node executions are still recorded.
			for r.inflight > 0 {
				result := <-r.results
				if result.retrying {
					continue
				}

				r.inflight--
				r.handleResult(ctx, result)
			}
		}
	}

	return r.finish(ctx)
}

// dispatchReady starts every undispatched node that is ready.
func (r *executionRun) dispatchReady(ctx context.Context) {
	if r.halted {
		return
	}

	for _, nodeID := range r.graph.TopoOrder() {
		if r.dispatched[nodeID] || !r.ready(nodeID) {
			continue
		}

		r.dispatched[nodeID] = true

		node := r.graph.Node(nodeID)
		nodeExecution := r.execution.NodeExecution(nodeID)

		if !node.Enabled {
			nodeExecution.Skip()

			continue
		}

		rawInputs := r.pending.claim(nodeID)
		inputs := resolve(rawInputs)

		nodeExecution.Start(inputs)
		r.execution.CurrentNodeID = nodeID

		r.engine.publishEvent(ctx, r.workflow.ID, events.NodeStarted{
			BaseEvent:   r.engine.baseEvent(events.NodeStartedEvent, r.workflow.ID),
			ExecutionID: r.execution.ID,
			NodeID:      nodeID,
			NodeKind:    node.Kind(),
		})

		r.inflight++

		go r.engine.invoke(ctx, protocol.ExecutionInfo{
			ExecutionID: r.execution.ID,
			WorkflowID:  r.execution.WorkflowID,
		}, node, inputs, rawInputs, r.results)
	}
}

// ready reports whether a node can be dispatched. Roots are ready
// immediately; any other node needs at least one delivered input AND every
// predecessor settled, so a fan-in node accumulates everything its
// predecessors will ever emit before it runs, while a branch that never fires
// cannot hold its successors back forever.
func (r *executionRun) ready(nodeID string) bool {
	if r.graph.InDegree(nodeID) == 0 {
		return true
	}

	if !r.pending.hasInput(nodeID) {
		return false
	}

	for _, predecessorID := range r.graph.Predecessors(nodeID) {
		if !r.settled(predecessorID) {
			return false
		}
	}

	return true
}

// settled reports whether a node can no longer deliver data: it already
// finished running, or nothing upstream can ever make it ready. The recursion
// grounds out at the roots, which the graph guarantees acyclic.
func (r *executionRun) settled(nodeID string) bool {
	if r.dispatched[nodeID] {
		switch r.execution.NodeExecution(nodeID).Status {
		case models.NodeStatusCompleted, models.NodeStatusFailed, models.NodeStatusSkipped:
			return true
		default:
			return false
		}
	}

	if r.graph.InDegree(nodeID) == 0 || r.pending.hasInput(nodeID) {
		return false
	}

	for _, predecessorID := range r.graph.Predecessors(nodeID) {
		if !r.settled(predecessorID) {
			return false
		}
	}

	return true
}

// invoke runs one node, retrying transient failures up to the spec's retry
// budget. It never touches the execution record; retry counts travel back in
// the result so the loop goroutine stays the single writer.
func (e *Engine) invoke(
	ctx context.Context,
	info protocol.ExecutionInfo,
	node *models.WorkflowNode,
	inputs map[string]any,
	rawInputs map[string]*models.OneOrMany,
	results chan<- nodeResult,
) {
	start := time.Now()
	runCtx := protocol.ContextWithExecution(ctx, info)

	report := func(raw map[string]any, retries int, err error) {
		results <- nodeResult{
			nodeID:    node.ID,
			raw:       raw,
			rawInputs: rawInputs,
			retries:   retries,
			duration:  time.Since(start),
			err:       err,
		}
	}

	spec, err := e.registry.Spec(node.Type, node.Subtype)
	if err != nil {
		report(nil, 0, err)

		return
	}

	runner, err := e.registry.CreateRunner(runCtx, node)
	if err != nil {
		report(nil, 0, err)

		return
	}

	var (
		raw     map[string]any
		retries int
	)

	for attempt := 0; ; attempt++ {
		raw, err = e.runAttempt(runCtx, runner, node, inputs, spec.Timeout)
		if err == nil {
			break
		}

		if _, isWait := protocol.AsWaitError(err); isWait {
			break
		}

		if runCtx.Err() != nil || attempt >= spec.MaxRetries {
			break
		}

		retries++

		e.logger.WarnContext(runCtx, "Node failed, retrying",
			"node_id", node.ID, "attempt", retries, "max_retries", spec.MaxRetries, "error", err)

		results <- nodeResult{nodeID: node.ID, retries: retries, retrying: true}
	}

	report(raw, retries, err)
}

func (e *Engine) runAttempt(
	ctx context.Context,
	runner protocol.Runner,
	node *models.WorkflowNode,
	inputs map[string]any,
	timeout time.Duration,
) (map[string]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return runner.Run(ctx, node, inputs)
}

// noteRetry moves the node record to the retrying status and persists it, so
// a transient failure is observable between attempts.
func (r *executionRun) noteRetry(ctx context.Context, result nodeResult) {
	r.execution.NodeExecution(result.nodeID).Retry()

	if err := r.engine.persistence.ExecutionRepository().SaveExecution(ctx, r.execution); err != nil {
		r.engine.logger.ErrorContext(ctx, "Failed to persist execution state",
			"execution_id", r.execution.ID, "error", err)
	}
}

func (r *executionRun) handleResult(ctx context.Context, result nodeResult) {
	nodeExecution := r.execution.NodeExecution(result.nodeID)
	nodeExecution.RetryCount = result.retries

	switch waitErr, isWait := protocol.AsWaitError(result.err); {
	case isWait:
		r.handleWait(result, waitErr, nodeExecution)
	case result.err != nil:
		r.handleFailure(ctx, result, nodeExecution)
	default:
		r.handleCompletion(ctx, result, nodeExecution)
	}

	if err := r.engine.persistence.ExecutionRepository().SaveExecution(ctx, r.execution); err != nil {
		r.engine.logger.ErrorContext(ctx, "Failed to persist execution state",
			"execution_id", r.execution.ID, "error", err)
	}
}

func (r *executionRun) handleWait(result nodeResult, waitErr *protocol.WaitError, nodeExecution *models.NodeExecution) {
	nodeExecution.AwaitInput()

	// The waiting node gets its consumed inputs back so the resumed run can
	// re-dispatch it with the original data plus the human response.
	r.pending.restore(result.nodeID, result.rawInputs)

	// First wait wins; dispatching stops but in-flight branches still finish
	// and propagate, so their deliveries are captured in the snapshot.
	if r.waitingNodeID == "" {
		r.waitingNodeID = result.nodeID
		r.waitingPrompt = waitErr.Prompt
		r.halted = true
	}
}

func (r *executionRun) handleFailure(ctx context.Context, result nodeResult, nodeExecution *models.NodeExecution) {
	nodeExecution.Fail(result.err.Error())

	r.halted = true

	if errors.Is(result.err, context.DeadlineExceeded) {
		r.timedOut = true
	}

	// A node aborted by external cancellation is not the run's failure cause.
	if errors.Is(result.err, context.Canceled) && ctx.Err() != nil {
		r.canceled = true
	}

	if r.failedNodeID == "" {
		r.failedNodeID = result.nodeID
		r.failedMessage = fmt.Sprintf("node %s failed: %v", result.nodeID, result.err)
	}

	r.engine.publishEvent(ctx, r.workflow.ID, events.NodeFailed{
		BaseEvent:   r.engine.baseEvent(events.NodeFailedEvent, r.workflow.ID),
		ExecutionID: r.execution.ID,
		NodeID:      result.nodeID,
		Error:       result.err.Error(),
		RetryCount:  result.retries,
	})
}

func (r *executionRun) handleCompletion(ctx context.Context, result nodeResult, nodeExecution *models.NodeExecution) {
	node := r.graph.Node(result.nodeID)

	spec, err := r.engine.registry.Spec(node.Type, node.Subtype)
	if err != nil {
		spec = nil
	}

	shaped := shapeOutputs(spec, result.raw)

	if indicatesFailure(spec, shaped) {
		nodeExecution.OutputData = shaped

		failureKey := models.DefaultFailureField
		if spec != nil {
			failureKey = spec.FailureKey()
		}

		message := fmt.Sprintf("node %s reported %s=false", result.nodeID, failureKey)
		nodeExecution.Fail(message)

		r.halted = true

		if r.failedNodeID == "" {
			r.failedNodeID = result.nodeID
			r.failedMessage = message
		}

		r.engine.publishEvent(ctx, r.workflow.ID, events.NodeFailed{
			BaseEvent:   r.engine.baseEvent(events.NodeFailedEvent, r.workflow.ID),
			ExecutionID: r.execution.ID,
			NodeID:      result.nodeID,
			Error:       message,
			RetryCount:  result.retries,
		})

		return
	}

	nodeExecution.Complete(shaped)
	r.execution.RecordCompletion(result.nodeID)

	r.engine.publishEvent(ctx, r.workflow.ID, events.NodeCompleted{
		BaseEvent:   r.engine.baseEvent(events.NodeCompletedEvent, r.workflow.ID),
		ExecutionID: r.execution.ID,
		NodeID:      result.nodeID,
		OutputData:  shaped,
		DurationMs:  result.duration.Milliseconds(),
	})

	// Branches already doomed by a failure or cancellation finish and are
	// recorded, but their outputs must not reach downstream nodes.
	if r.failedNodeID != "" || r.canceled {
		return
	}

	r.propagate(ctx, result.nodeID, result.raw, shaped)
}

// propagate delivers the shaped value for each outgoing edge's output port
// into the successor's pending inputs. A conversion expression runs against
// the raw pre-shaping payload and substitutes the shaped value only on
// success; conversion failures degrade to pass-through.
func (r *executionRun) propagate(ctx context.Context, nodeID string, raw, shaped map[string]any) {
	for _, edge := range r.graph.Successors(nodeID) {
		shapedValue, emitted := shaped[edge.OutputKey]
		if !emitted {
			continue
		}

		value := shapedValue

		if edge.Conversion != "" {
			converted, err := r.engine.converter.Execute(ctx, edge.Conversion, asMapping(raw[edge.OutputKey]))
			if err != nil {
				r.engine.logger.WarnContext(ctx, "Conversion failed, propagating unconverted value",
					"from_node", edge.From, "to_node", edge.To, "error", err)
			} else {
				value = converted
			}
		}

		r.pending.deliver(edge.To, models.DefaultOutputKey, value)
	}
}

func asMapping(payload any) map[string]any {
	if mapping, ok := payload.(map[string]any); ok {
		return mapping
	}

	return map[string]any{"value": payload}
}

// finish settles the execution's final status and persists it. Cancellation
// outranks failure, failure outranks suspension.
func (r *executionRun) finish(ctx context.Context) error {
	duration := time.Since(r.execution.StartTime)

	switch {
	case r.canceled:
		r.execution.Cancel()

		r.engine.publishEvent(ctx, r.workflow.ID, events.ExecutionCanceled{
			BaseEvent:   r.engine.baseEvent(events.ExecutionCanceledEvent, r.workflow.ID),
			ExecutionID: r.execution.ID,
			Reason:      "context canceled",
		})
	case r.timedOut:
		r.execution.Expire(r.failedMessage)

		r.engine.publishEvent(ctx, r.workflow.ID, events.ExecutionTimeout{
			BaseEvent:   r.engine.baseEvent(events.ExecutionTimeoutEvent, r.workflow.ID),
			ExecutionID: r.execution.ID,
			NodeID:      r.failedNodeID,
			Error:       r.failedMessage,
		})
	case r.failedNodeID != "":
		r.execution.Fail(r.failedMessage)

		r.engine.publishEvent(ctx, r.workflow.ID, events.ExecutionFailed{
			BaseEvent:     r.engine.baseEvent(events.ExecutionFailedEvent, r.workflow.ID),
			ExecutionID:   r.execution.ID,
			NodeID:        r.failedNodeID,
			Error:         r.failedMessage,
			DurationMs:    duration.Milliseconds(),
			NodesExecuted: len(r.execution.ExecutionSequence),
		})
	case r.waitingNodeID != "":
		if err := r.suspend(ctx); err != nil {
			return err
		}
	default:
		r.execution.Complete()

		r.engine.publishEvent(ctx, r.workflow.ID, events.ExecutionCompleted{
			BaseEvent:     r.engine.baseEvent(events.ExecutionCompletedEvent, r.workflow.ID),
			ExecutionID:   r.execution.ID,
			DurationMs:    duration.Milliseconds(),
			NodesExecuted: len(r.execution.ExecutionSequence),
		})
	}

	if err := r.engine.persistence.ExecutionRepository().SaveExecution(ctx, r.execution); err != nil {
		return fmt.Errorf("failed to persist final execution state: %w", err)
	}

	return nil
}

// suspend parks the execution: the full pending-input arena, the completion
// sequence and the waiting node go into a snapshot a resumer can pick up,
// possibly in another process.
func (r *executionRun) suspend(ctx context.Context) error {
	r.execution.Suspend(r.waitingNodeID)

	snapshot := &models.ExecutionSnapshot{
		ExecutionID:       r.execution.ID,
		WorkflowID:        r.execution.WorkflowID,
		WaitingNodeID:     r.waitingNodeID,
		Prompt:            r.waitingPrompt,
		PendingInputs:     r.pending.snapshot(),
		ExecutionSequence: append([]string(nil), r.execution.ExecutionSequence...),
		TriggerData:       r.execution.TriggerData,
		SuspendedAt:       time.Now().UTC(),
	}

	if err := r.engine.persistence.SnapshotRepository().SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist suspension snapshot: %w", err)
	}

	r.engine.publishEvent(ctx, r.workflow.ID, events.ExecutionPaused{
		BaseEvent:   r.engine.baseEvent(events.ExecutionPausedEvent, r.workflow.ID),
		ExecutionID: r.execution.ID,
		NodeID:      r.waitingNodeID,
		Prompt:      r.waitingPrompt,
	})

	return nil
}
