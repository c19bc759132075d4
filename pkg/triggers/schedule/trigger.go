// Package schedule provides the cron-based trigger. Each scheduler trigger
// node of a published workflow gets one Trigger instance watching its cron
// expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weftworks/weft/pkg/protocol"
)

// ErrCronExpressionMissing indicates a scheduler trigger node without a cron
// expression in its config.
var ErrCronExpressionMissing = errors.New("scheduler trigger requires a cron expression")

type Trigger struct {
	workflowID string
	nodeID     string
	expression string
	timezone   string
	logger     *slog.Logger
	cron       *cron.Cron
	callback   protocol.TriggerCallback
}

// NewTrigger builds a schedule trigger from a trigger node's config. Expected
// keys: "cron" (required, standard five-field expression) and "timezone"
// (optional IANA name).
func NewTrigger(logger *slog.Logger, workflowID, nodeID string, config map[string]any) (*Trigger, error) {
	expression, _ := config["cron"].(string)
	timezone, _ := config["timezone"].(string)

	trigger := &Trigger{
		workflowID: workflowID,
		nodeID:     nodeID,
		expression: expression,
		timezone:   timezone,
		logger: logger.With(
			"module", "schedule_trigger",
			"workflow_id", workflowID,
			"node_id", nodeID,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.expression == "" {
		return fmt.Errorf("%w (node %s)", ErrCronExpressionMissing, t.nodeID)
	}

	if _, err := cron.ParseStandard(t.expression); err != nil {
		return fmt.Errorf("invalid cron expression %q for node %s: %w", t.expression, t.nodeID, err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.callback = callback

	options := []cron.Option{}

	if t.timezone != "" {
		location, err := time.LoadLocation(t.timezone)
		if err != nil {
			t.logger.WarnContext(ctx, "Unknown timezone, falling back to local", "timezone", t.timezone, "error", err)
		} else {
			options = append(options, cron.WithLocation(location))
		}
	}

	t.cron = cron.New(options...)

	if _, err := t.cron.AddFunc(t.expression, t.fire); err != nil {
		return fmt.Errorf("failed to schedule cron job for node %s: %w", t.nodeID, err)
	}

	t.cron.Start()
	t.logger.InfoContext(ctx, "Schedule trigger started", "cron", t.expression)

	return nil
}

// fire runs on the cron goroutine; the callback is dispatched asynchronously
// so a slow downstream never delays the schedule.
func (t *Trigger) fire() {
	data := map[string]any{
		"trigger_node_id": t.nodeID,
		"schedule":        t.expression,
		"fired_at":        time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := t.callback(context.Background(), t.workflowID, data); err != nil {
			t.logger.Error("Schedule trigger callback failed", "error", err)
		}
	}()
}

func (t *Trigger) Stop(ctx context.Context) error {
	if t.cron != nil {
		t.cron.Stop()
	}

	t.logger.InfoContext(ctx, "Schedule trigger stopped")

	return nil
}
