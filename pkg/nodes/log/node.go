// Package log provides the log node, which writes a templated message to the
// structured log. Useful for debugging workflows in place.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/template"
)

// Node renders the configured message and logs it at the configured level.
type Node struct {
	logger *slog.Logger
}

func NewNode(logger *slog.Logger) *Node {
	return &Node{logger: logger.With("module", "log_node")}
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	message, _ := node.Config["message"].(string)

	info, _ := protocol.ExecutionFromContext(ctx)
	triggerData, _ := inputs[models.TriggerInputKey].(map[string]any)

	rendered, err := template.RenderWithContext(message, &template.Context{
		ExecutionID: info.ExecutionID,
		WorkflowID:  info.WorkflowID,
		Inputs:      inputs,
		TriggerData: triggerData,
	})
	if err != nil {
		return nil, fmt.Errorf("log node %s: failed to render message: %w", node.ID, err)
	}

	text := fmt.Sprintf("%v", rendered)

	level, _ := node.Config["level"].(string)

	logger := n.logger.With("node_id", node.ID, "execution_id", info.ExecutionID)

	switch level {
	case "debug":
		logger.DebugContext(ctx, text)
	case "warn":
		logger.WarnContext(ctx, text)
	case "error":
		logger.ErrorContext(ctx, text)
	default:
		logger.InfoContext(ctx, text)
	}

	return map[string]any{
		models.DefaultOutputKey: map[string]any{
			"logged":  true,
			"message": text,
		},
	}, nil
}
