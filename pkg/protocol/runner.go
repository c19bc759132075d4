// Package protocol defines the interfaces and contracts between the
// execution engine and its external collaborators: node runners, runner
// factories and triggers.
package protocol

import (
	"context"
	"errors"

	"github.com/weftworks/weft/pkg/models"
)

// Runner executes a single node's business logic. The engine treats the
// runner as untrusted: whatever it returns is normalized against the node
// type's declared output spec before propagating.
//
// The returned map is keyed by output port ("result" by default); the value
// under each key is the raw payload for that port. Runners performing
// blocking I/O must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error)
}

// RunnerFactory creates runner instances for one node kind and carries the
// node type's metadata: its config schema and its output spec.
type RunnerFactory interface {
	// Create builds a runner for the given node instance.
	Create(ctx context.Context, node *models.WorkflowNode) (Runner, error)

	// Kind returns the "type:subtype" key this factory serves.
	Kind() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns what this node type does.
	Description() string

	// ConfigSchema returns the JSON schema node configs are validated against.
	ConfigSchema() map[string]any

	// Spec returns the declared output contract used for output shaping.
	Spec() models.NodeSpec
}

// ErrAwaitingInput is the sentinel wrapped by WaitError. Runners signal a
// human-in-the-loop wait by returning a *WaitError; the engine suspends the
// execution instead of treating it as a failure.
var ErrAwaitingInput = errors.New("node awaiting external input")

// WaitError is returned by a runner whose completion depends on an external
// human response. Prompt is persisted with the suspension snapshot so the
// pending question survives a process restart.
type WaitError struct {
	Prompt map[string]any
}

func (e *WaitError) Error() string {
	return ErrAwaitingInput.Error()
}

func (e *WaitError) Unwrap() error {
	return ErrAwaitingInput
}

// AsWaitError extracts a WaitError from an error chain, if present.
func AsWaitError(err error) (*WaitError, bool) {
	var waitErr *WaitError
	if errors.As(err, &waitErr) {
		return waitErr, true
	}

	return nil, false
}
