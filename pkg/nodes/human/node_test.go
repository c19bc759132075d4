package human

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

func TestHumanNode_SuspendsWithPrompt(t *testing.T) {
	node := NewNode(slog.Default())

	workflowNode := &models.WorkflowNode{
		ID:   "approve-1",
		Type: "human",
		Config: map[string]any{
			"prompt":  "Approve release {{ .inputs.result.version }}?",
			"options": []any{"yes", "no"},
		},
	}

	inputs := map[string]any{"result": map[string]any{"version": "1.4.0"}}

	outputs, err := node.Run(context.Background(), workflowNode, inputs)

	require.Error(t, err)
	assert.Nil(t, outputs)

	waitErr, ok := protocol.AsWaitError(err)
	require.True(t, ok)
	assert.Equal(t, "Approve release 1.4.0?", waitErr.Prompt["message"])
	assert.Equal(t, "approve-1", waitErr.Prompt["node_id"])
	assert.Equal(t, []any{"yes", "no"}, waitErr.Prompt["options"])
}

func TestHumanNode_CompletesWithResponse(t *testing.T) {
	node := NewNode(slog.Default())

	workflowNode := &models.WorkflowNode{
		ID:     "approve-1",
		Type:   "human",
		Config: map[string]any{"prompt": "Approve?"},
	}

	response := map[string]any{"approved": true, "comment": "ship it"}

	outputs, err := node.Run(context.Background(), workflowNode, map[string]any{
		models.ResponseInputKey: response,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{models.DefaultOutputKey: response}, outputs)
}
