// Package transform provides the transform node, which reshapes its inputs
// with an expression evaluated in the conversion sandbox.
package transform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/transform"
)

// Node evaluates a configured expression against the node's inputs and emits
// the result on its result port. Unlike edge conversions, a failing transform
// node fails the node: reshaping is the node's whole job.
type Node struct {
	logger    *slog.Logger
	converter *transform.Converter
}

func NewNode(logger *slog.Logger, converter *transform.Converter) *Node {
	return &Node{
		logger:    logger.With("module", "transform_node"),
		converter: converter,
	}
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	expression, _ := node.Config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("transform node %s: missing 'expression' in configuration", node.ID)
	}

	result, err := n.converter.Execute(ctx, expression, inputs)
	if err != nil {
		return nil, fmt.Errorf("transform node %s: %w", node.ID, err)
	}

	n.logger.DebugContext(ctx, "Transform node evaluated expression",
		"node_id", node.ID, "output_fields", len(result))

	return map[string]any{models.DefaultOutputKey: result}, nil
}
