// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/weftworks/weft/pkg/registry"
	"github.com/weftworks/weft/pkg/transform"
)

// NewRegistry builds the node registry with all built-in node kinds. The
// returned converter is the shared expression sandbox, reused by the engine
// for edge conversion functions.
func NewRegistry(logger *slog.Logger) (*registry.Registry, *transform.Converter, error) {
	converter := transform.NewConverter(logger)

	reg := registry.NewRegistry(logger)
	if err := registry.RegisterDefaults(reg, logger, converter); err != nil {
		return nil, nil, err
	}

	return reg, converter, nil
}
