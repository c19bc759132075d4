// Package human provides the human-in-the-loop node. On first dispatch it
// suspends the execution with a prompt; the response supplied on resume
// becomes the node's output.
package human

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/template"
)

// Node suspends the execution until a human responds. When the engine resumes
// the execution it re-runs the node with the response among its inputs, and
// the node completes with that response as its result.
type Node struct {
	logger *slog.Logger
}

func NewNode(logger *slog.Logger) *Node {
	return &Node{logger: logger.With("module", "human_node")}
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	if response, ok := inputs[models.ResponseInputKey].(map[string]any); ok {
		n.logger.InfoContext(ctx, "Human response received", "node_id", node.ID)

		return map[string]any{models.DefaultOutputKey: response}, nil
	}

	prompt, err := n.buildPrompt(ctx, node, inputs)
	if err != nil {
		return nil, err
	}

	n.logger.InfoContext(ctx, "Node awaiting human input", "node_id", node.ID)

	return nil, &protocol.WaitError{Prompt: prompt}
}

func (n *Node) buildPrompt(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	message, _ := node.Config["prompt"].(string)

	info, _ := protocol.ExecutionFromContext(ctx)
	triggerData, _ := inputs[models.TriggerInputKey].(map[string]any)

	rendered, err := template.RenderWithContext(message, &template.Context{
		ExecutionID: info.ExecutionID,
		WorkflowID:  info.WorkflowID,
		Inputs:      inputs,
		TriggerData: triggerData,
	})
	if err != nil {
		return nil, fmt.Errorf("human node %s: failed to render prompt: %w", node.ID, err)
	}

	prompt := map[string]any{
		"message": fmt.Sprintf("%v", rendered),
		"node_id": node.ID,
	}

	if options, ok := node.Config["options"].([]any); ok {
		prompt["options"] = options
	}

	return prompt, nil
}
