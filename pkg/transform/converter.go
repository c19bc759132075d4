// Package transform executes per-edge conversion functions in a restricted
// expression sandbox. Conversion is best-effort enrichment: any compile or
// runtime failure is reported to the caller, who propagates the original
// value unchanged.
//
// Functions are expr-lang expressions evaluated against a closed environment
// exposing a single root, "input" (the raw payload flowing across the edge),
// plus the language's pure builtins (len, filter, map, string/number
// constructors, and so on). There is no file, network, process or import
// facility in the language, so containment is structural rather than policed.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConvertedDataKey is the key a non-mapping conversion result is wrapped
// under, so conversion output is always a mapping.
const ConvertedDataKey = "converted_data"

// environment is the complete evaluation namespace. Identifiers outside it
// fail at compile time.
type environment struct {
	Input map[string]any `expr:"input"`
}

// Converter compiles and runs conversion expressions, caching compiled
// programs by source text.
type Converter struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewConverter(logger *slog.Logger) *Converter {
	return &Converter{
		logger: logger.With("module", "transform"),
		cache:  make(map[string]*vm.Program),
	}
}

// Execute evaluates code against input and coerces the result to a mapping.
// Non-mapping results are wrapped under ConvertedDataKey. Errors never carry
// partial results; callers treat any error as "keep the original value".
func (c *Converter) Execute(ctx context.Context, code string, input map[string]any) (out map[string]any, err error) {
	if code == "" {
		return nil, fmt.Errorf("empty conversion function")
	}

	program, err := c.compile(code)
	if err != nil {
		c.logger.WarnContext(ctx, "Conversion function failed to compile", "error", err)

		return nil, err
	}

	// The expression VM can panic on pathological input shapes; a panicking
	// conversion degrades to pass-through like any other failure.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("conversion function panicked: %v", r)
			c.logger.WarnContext(ctx, "Conversion function panicked", "panic", r)
		}
	}()

	if input == nil {
		input = map[string]any{}
	}

	result, err := expr.Run(program, environment{Input: input})
	if err != nil {
		c.logger.WarnContext(ctx, "Conversion function failed", "error", err)

		return nil, err
	}

	return coerceToMap(result), nil
}

func (c *Converter) compile(code string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.cache[code]
	c.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(code, expr.Env(environment{}))
	if err != nil {
		return nil, fmt.Errorf("compile conversion function: %w", err)
	}

	c.mu.Lock()
	c.cache[code] = program
	c.mu.Unlock()

	return program, nil
}

func coerceToMap(result any) map[string]any {
	switch v := result.(type) {
	case map[string]any:
		return v
	case map[string]string:
		coerced := make(map[string]any, len(v))
		for key, value := range v {
			coerced[key] = value
		}

		return coerced
	default:
		return map[string]any{ConvertedDataKey: result}
	}
}
