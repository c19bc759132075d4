// Package models defines core node-based workflow models for graph execution.
package models

// CategoryType represents the category of node.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"  // Regular action nodes (http, transform, log, etc.)
	CategoryTypeTrigger CategoryType = "trigger" // Trigger nodes (webhook, scheduler, kafka, etc.)
)

// Built-in trigger node subtypes.
const (
	TriggerSubtypeWebhook   = "webhook"
	TriggerSubtypeScheduler = "scheduler"
	TriggerSubtypeKafka     = "kafka"
)

// WorkflowNode represents a node instance in a workflow. The engine treats a
// node as opaque beyond its identity and its type:subtype key, which selects
// both the runner implementation and the output spec used for shaping.
type WorkflowNode struct {
	ID        string         `json:"id"       validate:"required"`
	Type      string         `json:"type"     validate:"required"`
	Subtype   string         `json:"subtype"`
	Category  CategoryType   `json:"category" validate:"required"`
	Config    map[string]any `json:"config"`
	Name      string         `json:"name"     validate:"required,min=1"`
	Enabled   bool           `json:"enabled"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Kind returns the "type:subtype" key used for runner and spec lookup.
// Nodes without a subtype key on the bare type.
func (n *WorkflowNode) Kind() string {
	if n.Subtype == "" {
		return n.Type
	}

	return n.Type + ":" + n.Subtype
}

func (n *WorkflowNode) IsActionNode() bool {
	return n.Category == CategoryTypeAction
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Category == CategoryTypeTrigger
}
