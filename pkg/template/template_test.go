package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() *Context {
	return &Context{
		ExecutionID: "exec-12345678",
		WorkflowID:  "wf-1",
		Inputs:      map[string]any{"result": map[string]any{"city": "Berlin"}},
		TriggerData: map[string]any{"user": "ada"},
		Variables:   map[string]any{"greeting": "hello"},
	}
}

func TestRender_PlainStringPassthrough(t *testing.T) {
	out, err := Render("no templates here", nil)

	require.NoError(t, err)
	assert.Equal(t, "no templates here", out)
}

func TestRenderWithContext_Inputs(t *testing.T) {
	out, err := RenderWithContext("{{ .inputs.result.city }}", testContext())

	require.NoError(t, err)
	assert.Equal(t, "Berlin", out)
}

func TestRenderWithContext_TriggerAndVars(t *testing.T) {
	out, err := RenderWithContext("{{ .vars.greeting }} {{ .trigger.user }}", testContext())

	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)
}

func TestRender_NumberCoercion(t *testing.T) {
	out, err := Render("{{ .count }}", map[string]any{"count": 7})

	require.NoError(t, err)
	assert.Equal(t, float64(7), out)
}

func TestRender_BooleanCoercion(t *testing.T) {
	out, err := Render("{{ .flag }}", map[string]any{"flag": true})

	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRender_JSONCoercion(t *testing.T) {
	out, err := Render(`{"name": "{{ .trigger.user }}"}`, map[string]any{
		"trigger": map[string]any{"user": "ada"},
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada"}, out)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{ .unclosed", nil)

	assert.Error(t, err)
}

func TestRenderConfig_NestedAndMixed(t *testing.T) {
	config := map[string]any{
		"url":     "https://api.example.com/{{ .trigger.user }}",
		"retries": 3,
		"headers": map[string]any{
			"X-Execution": "{{ .execution.id }}",
		},
	}

	rendered, err := RenderConfig(config, testContext())

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/ada", rendered["url"])
	assert.Equal(t, 3, rendered["retries"])
	headers := rendered["headers"].(map[string]any)
	assert.Equal(t, "exec-12345678", headers["X-Execution"])
}
