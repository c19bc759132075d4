package engine

import "github.com/weftworks/weft/pkg/models"

// shapeOutputs normalizes a runner's raw output, port by port, against the
// node type's declared output fields. This is the contract boundary between
// untrusted runner implementations and the graph's data-flow guarantees:
// whatever a runner returns, downstream nodes only ever see declared fields.
func shapeOutputs(spec *models.NodeSpec, raw map[string]any) map[string]any {
	shaped := make(map[string]any, len(raw))
	for port, payload := range raw {
		shaped[port] = shapePayload(spec, payload)
	}

	return shaped
}

// shapePayload shapes one port's payload. A spec with no declared output
// fields passes the payload through unshaped. Otherwise mappings are
// projected onto the declared fields with per-field defaults; scalars are
// wrapped under the generic data field when the spec declares one, and fall
// back to the bare defaults when it does not.
func shapePayload(spec *models.NodeSpec, payload any) any {
	if spec == nil || len(spec.OutputFields) == 0 {
		return payload
	}

	mapping, isMapping := payload.(map[string]any)
	if !isMapping {
		shaped := defaults(spec)
		if _, declared := spec.OutputFields[models.GenericDataField]; declared && payload != nil {
			shaped[models.GenericDataField] = payload
		}

		return shaped
	}

	shaped := make(map[string]any, len(spec.OutputFields))

	for field, defaultValue := range spec.OutputFields {
		if value, ok := mapping[field]; ok {
			shaped[field] = value

			continue
		}

		shaped[field] = defaultValue
	}

	return shaped
}

func defaults(spec *models.NodeSpec) map[string]any {
	shaped := make(map[string]any, len(spec.OutputFields))
	for field, defaultValue := range spec.OutputFields {
		shaped[field] = defaultValue
	}

	return shaped
}

// indicatesFailure reports whether any shaped port carries the node spec's
// failure indicator with a false value, which triggers the fail-fast rule.
func indicatesFailure(spec *models.NodeSpec, shaped map[string]any) bool {
	key := models.DefaultFailureField
	if spec != nil {
		key = spec.FailureKey()
	}

	for _, payload := range shaped {
		mapping, ok := payload.(map[string]any)
		if !ok {
			continue
		}

		if failed, ok := mapping[key].(bool); ok && !failed {
			return true
		}
	}

	return false
}
