package domain

import "time"

type EventType string

const (
	EventServiceListed        EventType = "ServiceListed"
	EventTicketPurchased      EventType = "TicketPurchased"
	EventTicketRefunded       EventType = "TicketRefunded"
	EventServiceStatusChanged EventType = "ServiceStatusChanged"
	EventProceedsWithdrawn    EventType = "ProceedsWithdrawn"
)

// Event is one committed ledger record. Seq is assigned by the journal,
// starts at 1 and has no gaps. Only the fields relevant to Type are set.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	ServiceID uint64    `json:"serviceId"`

	// ServiceListed
	ServiceType      ServiceType `json:"serviceType,omitempty"`
	Name             string      `json:"name,omitempty"`
	Origin           string      `json:"origin,omitempty"`
	Destination      string      `json:"destination,omitempty"`
	StartTime        time.Time   `json:"startTime,omitzero"`
	BasePricePerSeat uint64      `json:"basePricePerSeat,omitempty"`
	TotalSeats       int         `json:"totalSeats,omitempty"`

	// ServiceListed, ProceedsWithdrawn
	Provider Account `json:"provider,omitempty"`

	// TicketPurchased, TicketRefunded
	TicketID uint64  `json:"ticketId,omitempty"`
	Buyer    Account `json:"buyer,omitempty"`
	Seats    []int   `json:"seats,omitempty"`

	// Amount is the ticket price for purchases and refunds, and the
	// transferred sum for withdrawals. Paid is what the buyer sent.
	Amount uint64 `json:"amount,omitempty"`
	Paid   uint64 `json:"paid,omitempty"`

	// ServiceStatusChanged
	IsActive bool `json:"isActive,omitempty"`
}

// Touches reports whether the event changes the mirrored state of its
// service.
func (e Event) Touches() bool {
	switch e.Type {
	case EventServiceListed, EventTicketPurchased, EventTicketRefunded, EventServiceStatusChanged:
		return true
	}
	return false
}
