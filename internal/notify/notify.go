// Package notify turns committed ledger events into account receipts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/seatledger/internal/domain"
)

type Receipt struct {
	Account domain.Account
	Seq     uint64
	Subject string
	Body    string
}

type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger.With("component", "notify")}
}

// Send delivers the receipt for event, if it has one. Delivery is a log
// line until a mail transport is configured.
func (s *Sender) Send(ctx context.Context, event domain.Event) error {
	r, ok := ReceiptFor(event)
	if !ok {
		return nil
	}
	s.logger.InfoContext(ctx, "receipt",
		"account", r.Account,
		"seq", r.Seq,
		"subject", r.Subject,
		"body", r.Body,
	)
	return nil
}

// ReceiptFor reports the receipt owed for event. Listings and status
// changes produce none.
func ReceiptFor(event domain.Event) (Receipt, bool) {
	r := Receipt{Seq: event.Seq}
	switch event.Type {
	case domain.EventTicketPurchased:
		r.Account = event.Buyer
		r.Subject = fmt.Sprintf("Ticket #%d confirmed", event.TicketID)
		r.Body = fmt.Sprintf("service %d seats %v, paid %d", event.ServiceID, event.Seats, event.Amount)
		if event.Paid > event.Amount {
			r.Body += fmt.Sprintf(", change %d", event.Paid-event.Amount)
		}
	case domain.EventTicketRefunded:
		r.Account = event.Buyer
		r.Subject = fmt.Sprintf("Ticket #%d refunded", event.TicketID)
		r.Body = fmt.Sprintf("service %d seats %v, refunded %d", event.ServiceID, event.Seats, event.Amount)
	case domain.EventProceedsWithdrawn:
		r.Account = event.Provider
		r.Subject = fmt.Sprintf("Withdrawal from service %d", event.ServiceID)
		r.Body = fmt.Sprintf("transferred %d", event.Amount)
	default:
		return Receipt{}, false
	}
	return r, true
}
