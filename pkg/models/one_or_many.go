package models

// OneOrMany accumulates the values delivered to a single input key of a node.
// A node with one predecessor sees a single value; a fan-in node with several
// predecessors sees a list in delivery order. This is a designed accumulation
// policy, not type punning: runners receive Value(), which is the single
// value or a []any of everything delivered.
type OneOrMany struct {
	Items []any `json:"values"`
}

// NewOneOrMany creates an accumulator holding a single value.
func NewOneOrMany(v any) *OneOrMany {
	return &OneOrMany{Items: []any{v}}
}

// Append adds a value delivered by a further predecessor.
func (o *OneOrMany) Append(v any) {
	o.Items = append(o.Items, v)
}

// Len returns the number of values delivered so far.
func (o *OneOrMany) Len() int {
	if o == nil {
		return 0
	}

	return len(o.Items)
}

// Value resolves the accumulator for a runner: nil when nothing was
// delivered, the bare value for exactly one delivery, a []any otherwise.
func (o *OneOrMany) Value() any {
	switch o.Len() {
	case 0:
		return nil
	case 1:
		return o.Items[0]
	default:
		return []any(o.Items)
	}
}
