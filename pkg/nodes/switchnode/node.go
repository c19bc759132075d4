// Package switchnode provides the switch node, which routes its inputs to one
// of several output ports by evaluating case conditions in order.
package switchnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/transform"
)

// ErrNoCaseMatched is returned when no case condition holds and the node has
// no default output configured.
var ErrNoCaseMatched = errors.New("no switch case matched and no default output configured")

// Case is one condition/port pair. When is an expression evaluated against
// the node's inputs; Output is the port the inputs are emitted on.
type Case struct {
	When   string
	Output string
}

// Node evaluates its cases in declaration order and emits the full input map
// on the first matching port. Downstream connections select a branch by
// connecting to that port's output key.
type Node struct {
	logger        *slog.Logger
	converter     *transform.Converter
	cases         []Case
	defaultOutput string
}

func NewNode(logger *slog.Logger, converter *transform.Converter, config map[string]any) (*Node, error) {
	rawCases, _ := config["cases"].([]any)

	cases := make([]Case, 0, len(rawCases))

	for i, raw := range rawCases {
		caseMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d: expected an object", i)
		}

		when, _ := caseMap["when"].(string)
		output, _ := caseMap["output"].(string)

		if when == "" || output == "" {
			return nil, fmt.Errorf("case %d: 'when' and 'output' are required", i)
		}

		cases = append(cases, Case{When: when, Output: output})
	}

	defaultOutput, _ := config["default_output"].(string)

	return &Node{
		logger:        logger.With("module", "switch_node"),
		converter:     converter,
		cases:         cases,
		defaultOutput: defaultOutput,
	}, nil
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	for _, c := range n.cases {
		matched, err := n.evaluate(ctx, c.When, inputs)
		if err != nil {
			return nil, fmt.Errorf("switch node %s: case %q: %w", node.ID, c.When, err)
		}

		if matched {
			n.logger.DebugContext(ctx, "Switch case matched",
				"node_id", node.ID, "output", c.Output)

			return map[string]any{c.Output: inputs}, nil
		}
	}

	if n.defaultOutput != "" {
		n.logger.DebugContext(ctx, "Switch fell through to default",
			"node_id", node.ID, "output", n.defaultOutput)

		return map[string]any{n.defaultOutput: inputs}, nil
	}

	return nil, fmt.Errorf("switch node %s: %w", node.ID, ErrNoCaseMatched)
}

func (n *Node) evaluate(ctx context.Context, condition string, inputs map[string]any) (bool, error) {
	result, err := n.converter.Execute(ctx, condition, inputs)
	if err != nil {
		return false, err
	}

	// Scalar condition results come back wrapped by the converter.
	value, ok := result[transform.ConvertedDataKey]
	if !ok {
		return len(result) > 0, nil
	}

	return truthy(value), nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		parsed, err := strconv.ParseBool(v)

		return err == nil && parsed
	case nil:
		return false
	default:
		return true
	}
}
