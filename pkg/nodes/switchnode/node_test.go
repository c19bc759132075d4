package switchnode

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/transform"
)

func newTestNode(t *testing.T, config map[string]any) *Node {
	t.Helper()

	logger := slog.Default()

	node, err := NewNode(logger, transform.NewConverter(logger), config)
	require.NoError(t, err)

	return node
}

func TestSwitchNode_FirstMatchingCaseWins(t *testing.T) {
	node := newTestNode(t, map[string]any{
		"cases": []any{
			map[string]any{"when": `input.result.status_code >= 500`, "output": "server_error"},
			map[string]any{"when": `input.result.status_code >= 400`, "output": "client_error"},
			map[string]any{"when": `input.result.status_code >= 200`, "output": "ok"},
		},
	})

	inputs := map[string]any{"result": map[string]any{"status_code": 404}}

	outputs, err := node.Run(context.Background(), &models.WorkflowNode{ID: "sw-1"}, inputs)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"client_error": inputs}, outputs)
}

func TestSwitchNode_DefaultOutput(t *testing.T) {
	node := newTestNode(t, map[string]any{
		"cases": []any{
			map[string]any{"when": `input.result.kind == "gold"`, "output": "gold"},
		},
		"default_output": "other",
	})

	inputs := map[string]any{"result": map[string]any{"kind": "silver"}}

	outputs, err := node.Run(context.Background(), &models.WorkflowNode{ID: "sw-1"}, inputs)

	require.NoError(t, err)
	assert.Contains(t, outputs, "other")
}

func TestSwitchNode_NoMatchNoDefault(t *testing.T) {
	node := newTestNode(t, map[string]any{
		"cases": []any{
			map[string]any{"when": `input.result.kind == "gold"`, "output": "gold"},
		},
	})

	_, err := node.Run(context.Background(), &models.WorkflowNode{ID: "sw-1"}, map[string]any{
		"result": map[string]any{"kind": "silver"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCaseMatched)
}

func TestSwitchNode_InvalidConditionFailsNode(t *testing.T) {
	node := newTestNode(t, map[string]any{
		"cases": []any{
			map[string]any{"when": `os.Getenv("HOME")`, "output": "never"},
		},
	})

	_, err := node.Run(context.Background(), &models.WorkflowNode{ID: "sw-1"}, map[string]any{})

	assert.Error(t, err)
}

func TestNewNode_RejectsIncompleteCase(t *testing.T) {
	logger := slog.Default()

	_, err := NewNode(logger, transform.NewConverter(logger), map[string]any{
		"cases": []any{
			map[string]any{"when": "true"},
		},
	})

	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy(true))
	assert.True(t, truthy(1))
	assert.True(t, truthy(0.5))
	assert.True(t, truthy("true"))
	assert.False(t, truthy(false))
	assert.False(t, truthy(0))
	assert.False(t, truthy("nope"))
	assert.False(t, truthy(nil))
}
