package models

import "time"

// DefaultFailureField is the conventional output field inspected for the
// fail-fast rule: a shaped payload carrying this field with a false value
// aborts the whole execution.
const DefaultFailureField = "success"

// GenericDataField is the field a scalar payload is wrapped under when a
// node spec declares it.
const GenericDataField = "data"

// NodeSpec declares the observable output contract of a node type, keyed by
// "type:subtype". The engine consults it solely for output shaping: declared
// fields are kept (falling back to their defaults), undeclared fields are
// dropped. An empty OutputFields map means the node's mapping output passes
// through unshaped.
type NodeSpec struct {
	Type         string         `json:"type"`
	Subtype      string         `json:"subtype,omitempty"`
	OutputFields map[string]any `json:"output_fields,omitempty"`
	FailureField string         `json:"failure_field,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
	MaxRetries   int            `json:"max_retries,omitempty"`
}

// Kind returns the "type:subtype" registry key.
func (s *NodeSpec) Kind() string {
	if s.Subtype == "" {
		return s.Type
	}

	return s.Type + ":" + s.Subtype
}

// FailureKey returns the failure indicator field, defaulting to "success".
func (s *NodeSpec) FailureKey() string {
	if s.FailureField == "" {
		return DefaultFailureField
	}

	return s.FailureField
}
