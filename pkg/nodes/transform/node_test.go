package transform

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
	sandbox "github.com/weftworks/weft/pkg/transform"
)

func newTestNode() *Node {
	logger := slog.Default()

	return NewNode(logger, sandbox.NewConverter(logger))
}

func TestTransformNode_ReshapesInputs(t *testing.T) {
	node := newTestNode()

	workflowNode := &models.WorkflowNode{
		ID: "t-1",
		Config: map[string]any{
			"expression": `{"city": input.result.city, "units": "metric"}`,
		},
	}

	outputs, err := node.Run(context.Background(), workflowNode, map[string]any{
		"result": map[string]any{"city": "Berlin", "noise": 1},
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		models.DefaultOutputKey: map[string]any{"city": "Berlin", "units": "metric"},
	}, outputs)
}

func TestTransformNode_MissingExpression(t *testing.T) {
	node := newTestNode()

	_, err := node.Run(context.Background(), &models.WorkflowNode{ID: "t-1", Config: map[string]any{}}, nil)

	assert.Error(t, err)
}

func TestTransformNode_ExpressionErrorFailsNode(t *testing.T) {
	node := newTestNode()

	workflowNode := &models.WorkflowNode{
		ID:     "t-1",
		Config: map[string]any{"expression": `undefined_name + 1`},
	}

	_, err := node.Run(context.Background(), workflowNode, map[string]any{})

	assert.Error(t, err)
}
