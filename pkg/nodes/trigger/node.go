// Package trigger provides the trigger node runners that root a workflow
// graph. A trigger node performs no work of its own: it hands the execution's
// trigger data to its successors.
package trigger

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
)

// Node emits the execution's trigger data on its result port.
type Node struct {
	logger *slog.Logger
}

func NewNode(logger *slog.Logger) *Node {
	return &Node{logger: logger.With("module", "trigger_node")}
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	data, _ := inputs[models.TriggerInputKey].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	n.logger.DebugContext(ctx, "Trigger node fired", "node_id", node.ID, "subtype", node.Subtype)

	return map[string]any{models.DefaultOutputKey: data}, nil
}
