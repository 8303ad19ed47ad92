package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptFor(t *testing.T) {
	purchase := domain.Event{Seq: 4, Type: domain.EventTicketPurchased, ServiceID: 1, TicketID: 2, Buyer: "alice", Seats: []int{3, 4}, Amount: 200, Paid: 250}
	r, ok := ReceiptFor(purchase)
	require.True(t, ok)
	assert.Equal(t, domain.Account("alice"), r.Account)
	assert.Equal(t, "Ticket #2 confirmed", r.Subject)
	assert.Equal(t, "service 1 seats [3 4], paid 200, change 50", r.Body)

	refund := domain.Event{Seq: 5, Type: domain.EventTicketRefunded, ServiceID: 1, TicketID: 2, Buyer: "alice", Seats: []int{3, 4}, Amount: 200}
	r, ok = ReceiptFor(refund)
	require.True(t, ok)
	assert.Equal(t, "Ticket #2 refunded", r.Subject)

	withdrawal := domain.Event{Seq: 6, Type: domain.EventProceedsWithdrawn, ServiceID: 1, Provider: "bob", Amount: 900}
	r, ok = ReceiptFor(withdrawal)
	require.True(t, ok)
	assert.Equal(t, domain.Account("bob"), r.Account)
	assert.Equal(t, "transferred 900", r.Body)

	_, ok = ReceiptFor(domain.Event{Type: domain.EventServiceListed})
	assert.False(t, ok)
	_, ok = ReceiptFor(domain.Event{Type: domain.EventServiceStatusChanged})
	assert.False(t, ok)
}

func TestSender_Send(t *testing.T) {
	var buf bytes.Buffer
	sender := NewSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sender.Send(context.Background(), domain.Event{Type: domain.EventServiceListed}))
	assert.Zero(t, buf.Len())

	require.NoError(t, sender.Send(context.Background(), domain.Event{Seq: 9, Type: domain.EventProceedsWithdrawn, ServiceID: 3, Provider: "bob", Amount: 10}))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "receipt", line["msg"])
	assert.Equal(t, "bob", line["account"])
	assert.Equal(t, float64(9), line["seq"])
	assert.Equal(t, "notify", line["component"])
}
