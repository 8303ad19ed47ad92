package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

type ConsumerOption func(*kafka.ReaderConfig)

// WithStartOffset selects where a consumer group without committed offsets
// begins: kafka.FirstOffset or kafka.LastOffset.
func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *kafka.ReaderConfig) { cfg.StartOffset = offset }
}

func NewConsumer(brokers []string, groupID, topic string, opts ...ConsumerOption) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Consumer{
		reader: kafka.NewReader(cfg),
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}

// Subscribe decodes each message as a ledger event. Undecodable messages
// are logged and skipped.
func (c *Consumer) Subscribe(ctx context.Context, handle func(context.Context, domain.Event) error) error {
	return c.Consume(ctx, DecodeEvents(c.logger, handle))
}

func DecodeEvents(logger *slog.Logger, handle func(context.Context, domain.Event) error) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn("decode event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return nil
		}
		return handle(ctx, event)
	}
}
