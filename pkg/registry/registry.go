// Package registry keeps the catalog of node types: runner factories keyed
// by "type:subtype", each carrying a config schema and the output spec the
// engine shapes node results against.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

var (
	// ErrUnknownNodeKind indicates no factory is registered for a node kind.
	ErrUnknownNodeKind = errors.New("node kind not registered")

	// ErrInvalidConfig indicates a node config failed schema validation.
	ErrInvalidConfig = errors.New("invalid node configuration")
)

// Component is the registered metadata of one node kind, exposed through the
// API so clients can discover available node types.
type Component struct {
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
	Spec        models.NodeSpec `json:"spec"`
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.RunnerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]protocol.RunnerFactory),
	}
}

// Register adds a runner factory. The factory's config schema must itself be
// a valid JSON schema; registration is the last point where a malformed node
// type can be rejected cheaply.
func (r *Registry) Register(factory protocol.RunnerFactory) error {
	kind := factory.Kind()
	if kind == "" {
		return errors.New("runner factory has empty kind")
	}

	if schema := factory.ConfigSchema(); schema != nil {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
			return fmt.Errorf("invalid config schema for %q: %w", kind, err)
		}
	}

	r.factories[kind] = factory
	r.logger.Debug("Registered node kind", "kind", kind)

	return nil
}

// CreateRunner validates the node's config against its kind's schema and
// builds a runner for it.
func (r *Registry) CreateRunner(ctx context.Context, node *models.WorkflowNode) (protocol.Runner, error) {
	factory, ok := r.factories[node.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeKind, node.Kind())
	}

	if err := r.validateConfig(factory, node.Config); err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	return factory.Create(ctx, node)
}

// Spec returns the output spec for a node kind, consulted by the engine for
// output shaping.
func (r *Registry) Spec(nodeType, subtype string) (*models.NodeSpec, error) {
	key := nodeType
	if subtype != "" {
		key = nodeType + ":" + subtype
	}

	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeKind, key)
	}

	spec := factory.Spec()

	return &spec, nil
}

// Components returns the registered node kinds sorted by kind.
func (r *Registry) Components() []Component {
	components := make([]Component, 0, len(r.factories))

	for kind, factory := range r.factories {
		components = append(components, Component{
			Kind:        kind,
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.ConfigSchema(),
			Spec:        factory.Spec(),
		})
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Kind < components[j].Kind
	})

	return components
}

func (r *Registry) validateConfig(factory protocol.RunnerFactory, config map[string]any) error {
	schema := factory.ConfigSchema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(details, "; "))
	}

	return nil
}
