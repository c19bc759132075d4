package models

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusNew             ExecutionStatus = "new"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusSuccess         ExecutionStatus = "success"
	ExecutionStatusError           ExecutionStatus = "error"
	ExecutionStatusCanceled        ExecutionStatus = "canceled"
	ExecutionStatusTimeout         ExecutionStatus = "timeout"
	ExecutionStatusWaitingForHuman ExecutionStatus = "waiting_for_human"
)

// IsTerminal reports whether no further engine work can happen for this
// status. waiting_for_human is deliberately non-terminal: the execution can
// be resumed, possibly by a different engine process.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusCanceled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// NodeExecutionStatus represents the state of a single node execution.
type NodeExecutionStatus string

const (
	NodeStatusPending      NodeExecutionStatus = "pending"
	NodeStatusRunning      NodeExecutionStatus = "running"
	NodeStatusRetrying     NodeExecutionStatus = "retrying"
	NodeStatusCompleted    NodeExecutionStatus = "completed"
	NodeStatusFailed       NodeExecutionStatus = "failed"
	NodeStatusWaitingInput NodeExecutionStatus = "waiting_input"
	NodeStatusSkipped      NodeExecutionStatus = "skipped"
)

// WorkflowExecution tracks one run of a workflow: per-node execution records,
// the order nodes completed in, and the overall status. Created when a
// trigger fires and mutated by the engine until a terminal status is reached
// or the execution suspends waiting for human input.
type WorkflowExecution struct {
	ID                string                    `json:"id"`
	WorkflowID        string                    `json:"workflow_id"`
	Status            ExecutionStatus           `json:"status"`
	TriggerData       map[string]any            `json:"trigger_data,omitempty"`
	StartTime         time.Time                 `json:"start_time"`
	EndTime           *time.Time                `json:"end_time,omitempty"`
	NodeExecutions    map[string]*NodeExecution `json:"node_executions"`
	ExecutionSequence []string                  `json:"execution_sequence"`
	CurrentNodeID     string                    `json:"current_node_id,omitempty"`
	Error             string                    `json:"error,omitempty"`
}

// NewWorkflowExecution creates an execution in the "new" status.
func NewWorkflowExecution(id, workflowID string, triggerData map[string]any) *WorkflowExecution {
	return &WorkflowExecution{
		ID:             id,
		WorkflowID:     workflowID,
		Status:         ExecutionStatusNew,
		TriggerData:    triggerData,
		NodeExecutions: make(map[string]*NodeExecution),
	}
}

// Begin transitions the execution to running and stamps the start time.
func (e *WorkflowExecution) Begin() {
	e.Status = ExecutionStatusRunning
	e.StartTime = time.Now().UTC()
}

// NodeExecution returns the record for a node, creating it lazily in the
// pending status on first access. One record per node per execution; retries
// mutate the same record.
func (e *WorkflowExecution) NodeExecution(nodeID string) *NodeExecution {
	if e.NodeExecutions == nil {
		e.NodeExecutions = make(map[string]*NodeExecution)
	}

	ne, ok := e.NodeExecutions[nodeID]
	if !ok {
		ne = &NodeExecution{NodeID: nodeID, Status: NodeStatusPending}
		e.NodeExecutions[nodeID] = ne
	}

	return ne
}

// RecordCompletion appends the node to the execution sequence.
func (e *WorkflowExecution) RecordCompletion(nodeID string) {
	e.ExecutionSequence = append(e.ExecutionSequence, nodeID)
}

func (e *WorkflowExecution) finish(status ExecutionStatus) {
	now := time.Now().UTC()
	e.Status = status
	e.EndTime = &now
	e.CurrentNodeID = ""
}

// Complete marks the execution successful.
func (e *WorkflowExecution) Complete() { e.finish(ExecutionStatusSuccess) }

// Fail marks the execution failed with the given error message.
func (e *WorkflowExecution) Fail(message string) {
	e.Error = message
	e.finish(ExecutionStatusError)
}

// Cancel marks the execution canceled.
func (e *WorkflowExecution) Cancel() { e.finish(ExecutionStatusCanceled) }

// Expire marks the execution failed due to a node timeout.
func (e *WorkflowExecution) Expire(message string) {
	e.Error = message
	e.finish(ExecutionStatusTimeout)
}

// Suspend parks the execution waiting for external human input on nodeID.
// The status is deliberately not terminal and no end time is stamped.
func (e *WorkflowExecution) Suspend(nodeID string) {
	e.Status = ExecutionStatusWaitingForHuman
	e.CurrentNodeID = nodeID
}

// ResumeFrom transitions a suspended execution back to running.
func (e *WorkflowExecution) ResumeFrom(nodeID string) {
	e.Status = ExecutionStatusRunning
	e.CurrentNodeID = nodeID
}

// NodeExecution is the record of a single node's execution within a workflow
// run: status transitions, timing, the inputs it consumed and the shaped
// outputs it produced.
type NodeExecution struct {
	NodeID     string              `json:"node_id"`
	Status     NodeExecutionStatus `json:"status"`
	StartTime  time.Time           `json:"start_time,omitzero"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	InputData  map[string]any      `json:"input_data,omitempty"`
	OutputData map[string]any      `json:"output_data,omitempty"`
	RetryCount int                 `json:"retry_count"`
	Error      string              `json:"error,omitempty"`
}

// Start marks the node running and records the inputs it was dispatched with.
func (ne *NodeExecution) Start(inputs map[string]any) {
	ne.Status = NodeStatusRunning
	ne.StartTime = time.Now().UTC()
	ne.InputData = inputs
}

// Retry bumps the retry counter after a transient failure.
func (ne *NodeExecution) Retry() {
	ne.Status = NodeStatusRetrying
	ne.RetryCount++
}

// Resume transitions a waiting node back to running.
func (ne *NodeExecution) Resume() {
	ne.Status = NodeStatusRunning
}

// Complete marks the node completed with its shaped output.
func (ne *NodeExecution) Complete(output map[string]any) {
	now := time.Now().UTC()
	ne.Status = NodeStatusCompleted
	ne.EndTime = &now
	ne.OutputData = output
}

// Fail marks the node failed with the given error message.
func (ne *NodeExecution) Fail(message string) {
	now := time.Now().UTC()
	ne.Status = NodeStatusFailed
	ne.EndTime = &now
	ne.Error = message
}

// AwaitInput marks the node as waiting for external human input.
func (ne *NodeExecution) AwaitInput() {
	ne.Status = NodeStatusWaitingInput
}

// Skip marks a disabled node as skipped without running it.
func (ne *NodeExecution) Skip() {
	now := time.Now().UTC()
	ne.Status = NodeStatusSkipped
	ne.EndTime = &now
}
