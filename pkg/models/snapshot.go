package models

import "time"

// ExecutionSnapshot is the serialized state of an in-flight execution parked
// on a human-interaction node. It carries everything the engine needs to
// continue after a process restart: the accumulated pending inputs, the
// completion sequence so far and the node the execution is waiting on.
type ExecutionSnapshot struct {
	ExecutionID       string                           `json:"execution_id"`
	WorkflowID        string                           `json:"workflow_id"`
	WaitingNodeID     string                           `json:"waiting_node_id"`
	Prompt            map[string]any                   `json:"prompt,omitempty"`
	PendingInputs     map[string]map[string]*OneOrMany `json:"pending_inputs"`
	ExecutionSequence []string                         `json:"execution_sequence"`
	TriggerData       map[string]any                   `json:"trigger_data,omitempty"`
	SuspendedAt       time.Time                        `json:"suspended_at"`
	ClaimedBy         string                           `json:"claimed_by,omitempty"`
}
