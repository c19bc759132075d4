package human

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

const nodeType = "human"

// Factory creates human-in-the-loop node runners.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (f *Factory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.Runner, error) {
	return NewNode(f.logger), nil
}

func (f *Factory) Kind() string {
	return nodeType
}

func (f *Factory) Name() string {
	return "Human Input"
}

func (f *Factory) Description() string {
	return "Pauses the workflow and waits for a human response before continuing."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Question shown to the human. Supports templating.",
				"examples": []string{
					"Approve deployment of {{ .inputs.result.version }}?",
				},
			},
			"options": map[string]any{
				"type":        "array",
				"description": "Suggested responses, if the prompt is a choice.",
				"items": map[string]any{
					"type": "string",
				},
			},
		},
		"required":             []string{"prompt"},
		"additionalProperties": false,
	}
}

// Spec declares no output fields: the human response passes through as the
// node's result.
func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{Type: nodeType}
}
