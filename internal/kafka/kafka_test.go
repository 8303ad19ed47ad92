package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

func TestEventPublisher_KeysByService(t *testing.T) {
	mockProducer := &MockPublisher{}
	pub := NewEventPublisher(mockProducer, "ledger-events")
	ctx := context.Background()
	ev := domain.Event{Seq: 3, Type: domain.EventTicketPurchased, ServiceID: 17}

	mockProducer.On("Publish", ctx, "ledger-events", "17", ev).Return(nil).Once()

	assert.NoError(t, pub.PublishEvent(ctx, ev))
	mockProducer.AssertExpectations(t)
}

func TestEventPublisher_PropagatesError(t *testing.T) {
	mockProducer := &MockPublisher{}
	pub := NewEventPublisher(mockProducer, "ledger-events")
	ctx := context.Background()

	mockProducer.On("Publish", ctx, "ledger-events", "1", mock.Anything).Return(errors.New("no leader")).Once()

	assert.EqualError(t, pub.PublishEvent(ctx, domain.Event{ServiceID: 1}), "no leader")
	// retries belong to the ledger outbox
	mockProducer.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDecodeEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got []domain.Event
	handler := DecodeEvents(logger, func(_ context.Context, ev domain.Event) error {
		got = append(got, ev)
		return nil
	})

	payload, err := json.Marshal(domain.Event{Seq: 4, Type: domain.EventTicketRefunded, TicketID: 2, Seats: []int{1, 2}})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), kafka.Message{Value: payload}))
	require.NoError(t, handler(context.Background(), kafka.Message{Value: []byte("{not json")}))

	require.Len(t, got, 1)
	assert.Equal(t, uint64(4), got[0].Seq)
	assert.Equal(t, []int{1, 2}, got[0].Seats)
}

func TestNewConsumer_StartOffset(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "", "t", WithStartOffset(kafka.LastOffset))
	defer c.Close()
	assert.Equal(t, kafka.LastOffset, c.reader.Config().StartOffset)
}
