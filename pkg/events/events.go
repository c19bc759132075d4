// Package events defines the event types published on the workflow event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single event bus topic; consumers filter by event type.
const Topic = "weft.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Requests consumed by workers.
	ExecutionRequestedEvent EventType = "execution.requested"
	ResumeRequestedEvent    EventType = "execution.resume.requested"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCanceledEvent  EventType = "execution.canceled"
	ExecutionTimeoutEvent   EventType = "execution.timeout"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Workflow definition lifecycle events.
	WorkflowPublishedEvent EventType = "workflow.published"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ExecutionRequested asks a worker to start a new execution of a workflow.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	TriggerKind string         `json:"trigger_kind"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionRequested) GetType() EventType { return ExecutionRequestedEvent }

// ResumeRequested asks a worker to resume a suspended execution with a human
// response.
type ResumeRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Response    map[string]any `json:"response"`
	ResumedBy   string         `json:"resumed_by,omitempty"`
}

func (e ResumeRequested) GetType() EventType { return ResumeRequestedEvent }

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	WorkflowName string         `json:"workflow_name"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	NodeID        string `json:"node_id,omitempty"`
	Error         string `json:"error"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCanceled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCanceled) GetType() EventType { return ExecutionCanceledEvent }

type ExecutionTimeout struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
}

func (e ExecutionTimeout) GetType() EventType { return ExecutionTimeoutEvent }

// ExecutionPaused is published when an execution suspends on a
// human-interaction node.
type ExecutionPaused struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Prompt      map[string]any `json:"prompt,omitempty"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	ResumedBy   string `json:"resumed_by,omitempty"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type NodeStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	NodeKind    string `json:"node_kind"`
}

func (e NodeStarted) GetType() EventType { return NodeStartedEvent }

type NodeCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	OutputData  map[string]any `json:"output_data,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType { return NodeCompletedEvent }

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	RetryCount  int    `json:"retry_count"`
}

func (e NodeFailed) GetType() EventType { return NodeFailedEvent }

// WorkflowPublished is emitted when a workflow version becomes the active
// one, so trigger managers can reconcile their watchers.
type WorkflowPublished struct {
	BaseEvent

	PublishedBy string `json:"published_by,omitempty"`
}

func (e WorkflowPublished) GetType() EventType { return WorkflowPublishedEvent }
