// Package template provides templating for dynamic node configuration. Node
// config values may reference execution state ({{ .inputs }}, {{ .trigger }},
// {{ .vars }}, {{ .execution }}) and are rendered just before the node runs.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Context is the data a node config template renders against.
type Context struct {
	ExecutionID string
	WorkflowID  string
	Inputs      map[string]any
	TriggerData map[string]any
	Variables   map[string]any
}

// RenderWithContext renders input against the execution context.
func RenderWithContext(input string, ctx *Context) (any, error) {
	data := map[string]any{
		"inputs":  ctx.Inputs,
		"trigger": ctx.TriggerData,
		"vars":    ctx.Variables,
		"execution": map[string]any{
			"id":          ctx.ExecutionID,
			"workflow_id": ctx.WorkflowID,
		},
	}

	return Render(input, data)
}

// RenderConfig renders every string value of a node config map, leaving
// non-string values untouched. Nested maps are rendered recursively.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			out, err := RenderWithContext(v, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to render config key %q: %w", key, err)
			}

			rendered[key] = out
		case map[string]any:
			out, err := RenderConfig(v, ctx)
			if err != nil {
				return nil, err
			}

			rendered[key] = out
		default:
			rendered[key] = value
		}
	}

	return rendered, nil
}

// Render executes templateStr against data and coerces the result: JSON
// objects/arrays are decoded, then numbers, then booleans, falling back to
// the raw string.
func Render(templateStr string, data any) (any, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
