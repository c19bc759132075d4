package trigger

import (
	"context"
	"log/slog"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
)

// Factory creates trigger node runners for one trigger subtype. All subtypes
// share the same runner; the subtype only selects which external watcher
// feeds the node.
type Factory struct {
	logger      *slog.Logger
	subtype     string
	name        string
	description string
	schema      map[string]any
}

// NewWebhookFactory creates the factory for webhook-rooted workflows.
func NewWebhookFactory(logger *slog.Logger) *Factory {
	return &Factory{
		logger:      logger,
		subtype:     models.TriggerSubtypeWebhook,
		name:        "Webhook Trigger",
		description: "Starts the workflow when an HTTP request hits its webhook endpoint.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Webhook path suffix the workflow listens on.",
				},
			},
			"additionalProperties": false,
		},
	}
}

// NewSchedulerFactory creates the factory for cron-scheduled workflows.
func NewSchedulerFactory(logger *slog.Logger) *Factory {
	return &Factory{
		logger:      logger,
		subtype:     models.TriggerSubtypeScheduler,
		name:        "Schedule Trigger",
		description: "Starts the workflow on a cron schedule.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron": map[string]any{
					"type":        "string",
					"description": "Cron expression, five fields, evaluated in UTC.",
					"examples":    []string{"*/5 * * * *", "0 9 * * 1-5"},
				},
			},
			"required":             []string{"cron"},
			"additionalProperties": false,
		},
	}
}

// NewKafkaFactory creates the factory for kafka-triggered workflows.
func NewKafkaFactory(logger *slog.Logger) *Factory {
	return &Factory{
		logger:      logger,
		subtype:     models.TriggerSubtypeKafka,
		name:        "Kafka Trigger",
		description: "Starts the workflow for each message consumed from a Kafka topic.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Topic to consume from.",
				},
				"consumer_group": map[string]any{
					"type":        "string",
					"description": "Consumer group ID. Defaults to one derived from the workflow ID.",
				},
			},
			"required":             []string{"topic"},
			"additionalProperties": false,
		},
	}
}

func (f *Factory) Create(_ context.Context, _ *models.WorkflowNode) (protocol.Runner, error) {
	return NewNode(f.logger), nil
}

func (f *Factory) Kind() string {
	return string(models.CategoryTypeTrigger) + ":" + f.subtype
}

func (f *Factory) Name() string {
	return f.name
}

func (f *Factory) Description() string {
	return f.description
}

func (f *Factory) ConfigSchema() map[string]any {
	return f.schema
}

// Spec declares no output fields: the trigger data passes through unshaped.
func (f *Factory) Spec() models.NodeSpec {
	return models.NodeSpec{
		Type:    string(models.CategoryTypeTrigger),
		Subtype: f.subtype,
	}
}
