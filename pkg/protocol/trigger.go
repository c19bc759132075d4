package protocol

import "context"

// TriggerCallback is invoked by a trigger when its external condition fires.
// The data map becomes the execution's initial trigger data.
type TriggerCallback func(ctx context.Context, workflowID string, data map[string]any) error

// Trigger watches an external condition (cron schedule, kafka topic, ...)
// and requests workflow executions through its callback.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}
