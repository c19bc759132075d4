package protocol

import "context"

// ExecutionInfo identifies the workflow execution a runner invocation
// belongs to. It travels on the context so runners can render templates and
// tag logs without widening the Runner contract.
type ExecutionInfo struct {
	ExecutionID string
	WorkflowID  string
}

type executionInfoKey struct{}

// ContextWithExecution attaches execution info to ctx.
func ContextWithExecution(ctx context.Context, info ExecutionInfo) context.Context {
	return context.WithValue(ctx, executionInfoKey{}, info)
}

// ExecutionFromContext returns the execution info attached to ctx, if any.
func ExecutionFromContext(ctx context.Context) (ExecutionInfo, bool) {
	info, ok := ctx.Value(executionInfoKey{}).(ExecutionInfo)

	return info, ok
}
