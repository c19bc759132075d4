package httprequest

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

const nodeType = "httprequest"

// Factory creates HTTP request node runners.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode) (protocol.Runner, error) {
	return NewNode(f.logger, node.Config)
}

func (f *Factory) Kind() string {
	return nodeType
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{ .inputs.result.user_id }}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating for dynamic JSON or text content.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Per-request timeout in seconds.",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

// Spec declares the response shape. A non-2xx/3xx response sets success to
// false, which aborts the execution under the fail-fast rule.
func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{
		Type: nodeType,
		OutputFields: map[string]any{
			"status_code": 0,
			"body":        nil,
			"headers":     map[string]any{},
			"success":     true,
		},
		FailureField: models.DefaultFailureField,
		Timeout:      defaultTimeoutSeconds * time.Second,
		MaxRetries:   2,
	}
}
