package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const messageIDHeader = "message-id"

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	logger  *slog.Logger
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		logger:  slog.Default().With("component", "kafka-producer"),
	}
}

// Publish writes payload as JSON. Messages with the same key land on the
// same partition and keep their relative order. Publish does not retry;
// the ledger outbox retries failed events.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: messageIDHeader, Value: []byte(uuid.NewString())}},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.Debug("published", "topic", topic, "key", key)
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (p *Producer) CheckConnection(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}
	return nil
}

type publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// EventPublisher sends ledger events to one topic keyed by service id, so
// every event of a service stays on one partition in commit order.
type EventPublisher struct {
	producer publisher
	topic    string
}

func NewEventPublisher(producer publisher, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

func (p *EventPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	return p.producer.Publish(ctx, p.topic, EventKey(event), event)
}

func EventKey(event domain.Event) string {
	return strconv.FormatUint(event.ServiceID, 10)
}
