package switchnode

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/transform"
)

const nodeType = "switch"

// Factory creates switch node runners sharing one expression converter.
type Factory struct {
	logger    *slog.Logger
	converter *transform.Converter
}

func NewFactory(logger *slog.Logger, converter *transform.Converter) *Factory {
	return &Factory{logger: logger, converter: converter}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.Runner, error) {
	return NewNode(f.logger, f.converter, node.Config)
}

func (f *Factory) Kind() string {
	return nodeType
}

func (f *Factory) Name() string {
	return "Switch"
}

func (f *Factory) Description() string {
	return "Routes inputs to one of several output ports based on case conditions."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cases": map[string]any{
				"type":        "array",
				"description": "Conditions checked in order. The first matching case selects the output port.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"when": map[string]any{
							"type":        "string",
							"format":      "code",
							"description": "Condition expression evaluated against the node inputs.",
							"examples":    []string{`input.result.status_code == 200`, `len(input.result.items) > 0`},
						},
						"output": map[string]any{
							"type":        "string",
							"description": "Output port to emit on when the condition holds.",
						},
					},
					"required":             []string{"when", "output"},
					"additionalProperties": false,
				},
			},
			"default_output": map[string]any{
				"type":        "string",
				"description": "Port to emit on when no case matches. Omitting it makes a fall-through an error.",
			},
		},
		"required":             []string{"cases"},
		"additionalProperties": false,
	}
}

// Spec declares no output fields: the switch forwards its inputs untouched,
// only the port varies.
func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{Type: nodeType}
}
