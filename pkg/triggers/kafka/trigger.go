// Package kafka provides the Kafka-backed trigger. Each kafka trigger node of
// a published workflow gets a consumer group member that requests an
// execution per consumed message.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/weftworks/weft/pkg/protocol"
)

// ErrTopicMissing indicates a kafka trigger node without a topic in its config.
var ErrTopicMissing = errors.New("kafka trigger requires at least one topic")

type Trigger struct {
	workflowID    string
	nodeID        string
	topics        []string
	brokers       []string
	consumerGroup string
	logger        *slog.Logger
	consumer      sarama.ConsumerGroup
	callback      protocol.TriggerCallback
	cancel        context.CancelFunc
}

// NewTrigger builds a kafka trigger from a trigger node's config. Expected
// keys: "topics" (required, list or single string under "topic"), "brokers"
// (optional comma-separated string, falling back to KAFKA_BROKERS) and
// "consumer_group" (optional).
func NewTrigger(logger *slog.Logger, workflowID, nodeID string, config map[string]any) (*Trigger, error) {
	trigger := &Trigger{
		workflowID:    workflowID,
		nodeID:        nodeID,
		topics:        parseTopics(config),
		brokers:       parseBrokers(config["brokers"]),
		consumerGroup: parseConsumerGroup(config["consumer_group"], workflowID, nodeID),
		logger: logger.With(
			"module", "kafka_trigger",
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
	if len(t.topics) == 0 {
		return fmt.Errorf("%w (node %s)", ErrTopicMissing, t.nodeID)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.callback = callback

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(t.brokers, t.consumerGroup, config)
	if err != nil {
		return fmt.Errorf("failed to create consumer group for node %s: %w", t.nodeID, err)
	}

	t.consumer = consumer

	consumeCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.consume(consumeCtx)
	go t.monitorErrors(consumeCtx)

	t.logger.InfoContext(ctx, "Kafka trigger started",
		"topics", t.topics, "consumer_group", t.consumerGroup)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	handler := &consumerHandler{trigger: t}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := t.consumer.Consume(ctx, t.topics, handler); err != nil {
				t.logger.Error("Kafka consumer error, retrying", "error", err)
				time.Sleep(5 * time.Second)
			}
		}
	}
}

func (t *Trigger) monitorErrors(ctx context.Context) {
	for {
		select {
		case err, ok := <-t.consumer.Errors():
			if !ok {
				return
			}

			if err != nil {
				t.logger.Error("Kafka consumer group error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Trigger) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}

	if t.consumer != nil {
		if err := t.consumer.Close(); err != nil {
			return fmt.Errorf("failed to close consumer for node %s: %w", t.nodeID, err)
		}
	}

	t.logger.InfoContext(ctx, "Kafka trigger stopped")

	return nil
}

type consumerHandler struct {
	trigger *Trigger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		data := h.triggerData(message)

		if err := h.trigger.callback(session.Context(), h.trigger.workflowID, data); err != nil {
			h.trigger.logger.Error("Kafka trigger callback failed",
				"topic", message.Topic, "offset", message.Offset, "error", err)
		}

		session.MarkMessage(message, "")
	}

	return nil
}

// triggerData turns a consumed message into execution trigger data. The value
// is JSON-decoded when possible and carried raw otherwise.
func (h *consumerHandler) triggerData(message *sarama.ConsumerMessage) map[string]any {
	var payload any

	if len(message.Value) > 0 {
		if err := json.Unmarshal(message.Value, &payload); err != nil {
			payload = map[string]any{"raw_message": string(message.Value)}
		}
	}

	headers := make(map[string]string, len(message.Headers))
	for _, header := range message.Headers {
		headers[string(header.Key)] = string(header.Value)
	}

	return map[string]any{
		"trigger_node_id": h.trigger.nodeID,
		"topic":           message.Topic,
		"partition":       message.Partition,
		"offset":          message.Offset,
		"key":             string(message.Key),
		"message":         payload,
		"headers":         headers,
	}
}

func parseTopics(config map[string]any) []string {
	switch topics := config["topics"].(type) {
	case []string:
		return topics
	case []any:
		out := make([]string, 0, len(topics))
		for _, topic := range topics {
			out = append(out, fmt.Sprintf("%v", topic))
		}

		return out
	}

	if topic, ok := config["topic"].(string); ok && topic != "" {
		return []string{topic}
	}

	return nil
}

func parseBrokers(value any) []string {
	brokers, _ := value.(string)
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKERS")
	}

	if brokers == "" {
		brokers = "localhost:9092"
	}

	parts := strings.Split(brokers, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}

	return parts
}

func parseConsumerGroup(value any, workflowID, nodeID string) string {
	if group, ok := value.(string); ok && group != "" {
		return group
	}

	return fmt.Sprintf("weft-trigger-%s-%s", workflowID, nodeID)
}
