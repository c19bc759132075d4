package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weftworks/weft/pkg/models"
)

func TestShapeOutputsProjectsDeclaredFields(t *testing.T) {
	spec := &models.NodeSpec{
		Type: "httprequest",
		OutputFields: map[string]any{
			"status_code": 0,
			"body":        nil,
			"success":     true,
		},
	}

	shaped := shapeOutputs(spec, map[string]any{
		models.DefaultOutputKey: map[string]any{
			"status_code": 200,
			"body":        map[string]any{"ok": true},
			"internal":    "leaks",
		},
	})

	result := shaped[models.DefaultOutputKey].(map[string]any)
	assert.Equal(t, 200, result["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, result["body"])
	assert.Equal(t, true, result["success"], "missing field falls back to its default")
	assert.NotContains(t, result, "internal", "undeclared fields are dropped")
}

func TestShapeOutputsEmptySpecPassesThrough(t *testing.T) {
	raw := map[string]any{
		models.DefaultOutputKey: map[string]any{"anything": 1},
		"side":                  "scalar",
	}

	assert.Equal(t, raw, shapeOutputs(&models.NodeSpec{Type: "transform"}, raw))
	assert.Equal(t, raw, shapeOutputs(nil, raw))
}

func TestShapeOutputsWrapsScalarUnderGenericField(t *testing.T) {
	spec := &models.NodeSpec{
		Type:         "fetch",
		OutputFields: map[string]any{models.GenericDataField: nil, "success": true},
	}

	shaped := shapeOutputs(spec, map[string]any{models.DefaultOutputKey: "plain text"})

	result := shaped[models.DefaultOutputKey].(map[string]any)
	assert.Equal(t, "plain text", result[models.GenericDataField])
	assert.Equal(t, true, result["success"])
}

func TestShapeOutputsScalarWithoutGenericFieldGetsDefaults(t *testing.T) {
	spec := &models.NodeSpec{
		Type:         "probe",
		OutputFields: map[string]any{"success": true},
	}

	shaped := shapeOutputs(spec, map[string]any{models.DefaultOutputKey: 42})

	assert.Equal(t, map[string]any{"success": true}, shaped[models.DefaultOutputKey])
}

func TestIndicatesFailure(t *testing.T) {
	spec := &models.NodeSpec{Type: "probe"}

	assert.True(t, indicatesFailure(spec, map[string]any{
		models.DefaultOutputKey: map[string]any{"success": false},
	}))
	assert.False(t, indicatesFailure(spec, map[string]any{
		models.DefaultOutputKey: map[string]any{"success": true},
	}))
	assert.False(t, indicatesFailure(spec, map[string]any{
		models.DefaultOutputKey: map[string]any{"other": 1},
	}), "absent indicator means no failure")
	assert.False(t, indicatesFailure(spec, map[string]any{
		models.DefaultOutputKey: "scalar",
	}))
}

func TestIndicatesFailureCustomField(t *testing.T) {
	spec := &models.NodeSpec{Type: "probe", FailureField: "healthy"}

	assert.True(t, indicatesFailure(spec, map[string]any{
		models.DefaultOutputKey: map[string]any{"healthy": false, "success": true},
	}))
}
