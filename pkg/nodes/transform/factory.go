package transform

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/transform"
)

const nodeType = "transform"

// Factory creates transform node runners sharing a single expression
// converter, so compiled programs are cached across nodes.
type Factory struct {
	logger    *slog.Logger
	converter *transform.Converter
}

func NewFactory(logger *slog.Logger, converter *transform.Converter) *Factory {
	return &Factory{logger: logger, converter: converter}
}

func (f *Factory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.Runner, error) {
	return NewNode(f.logger, f.converter), nil
}

func (f *Factory) Kind() string {
	return nodeType
}

func (f *Factory) Name() string {
	return "Transform"
}

func (f *Factory) Description() string {
	return "Reshapes input data with an expression. The expression sees the node's inputs as 'input'."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Expression evaluated against the node inputs.",
				"examples": []string{
					`{"city": input.result.city, "units": "metric"}`,
					`map(input.result.items, .price * 1.2)`,
				},
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}

// Spec declares no output fields: transform output is the caller's shape by
// definition and passes through unshaped.
func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{Type: nodeType}
}
