package models

// DefaultOutputKey is the output port a connection reads from when none is
// configured, and the input key under which propagated data is delivered.
const DefaultOutputKey = "result"

// TriggerInputKey is the input key trigger data is seeded under for the
// workflow's root nodes.
const TriggerInputKey = "trigger"

// ResponseInputKey is the input key a human response is delivered under when
// a suspended execution resumes.
const ResponseInputKey = "response"

// Connection is a directed edge between two nodes. Data flowing across the
// edge is taken from the source node's shaped output under OutputKey and
// delivered into the target node's pending inputs. An optional conversion
// expression reshapes the payload in flight; conversion failures are
// non-fatal and degrade to pass-through.
type Connection struct {
	ID         string `json:"id"`
	FromNode   string `json:"from_node" validate:"required"`
	ToNode     string `json:"to_node"   validate:"required"`
	OutputKey  string `json:"output_key,omitempty"`
	Conversion string `json:"conversion_function,omitempty"`
}

// SourceKey returns the output port this connection reads from.
func (c *Connection) SourceKey() string {
	if c.OutputKey == "" {
		return DefaultOutputKey
	}

	return c.OutputKey
}
