package log

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

const nodeType = "log"

// Factory creates log node runners.
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
	return "Log"
}

func (f *Factory) Description() string {
	return "Writes a templated message to the execution log."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
				"examples": []string{
					"processing user {{ .trigger.user_id }}",
					"fetched {{ .inputs.result.count }} records",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{
		Type: nodeType,
		OutputFields: map[string]any{
			"logged":  true,
			"message": "",
		},
	}
}
