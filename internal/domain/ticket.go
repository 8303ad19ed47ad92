package domain

import "time"

type Ticket struct {
	ID          uint64    `json:"id"`
	ServiceID   uint64    `json:"serviceId"`
	Buyer       Account   `json:"buyer"`
	Seats       []int     `json:"seats"`
	TotalPaid   uint64    `json:"totalPaid"`
	PurchasedAt time.Time `json:"purchasedAt"`
	Refunded    bool      `json:"refunded"`
}

type PayoutReason string

const (
	PayoutChange     PayoutReason = "change"
	PayoutRefund     PayoutReason = "refund"
	PayoutWithdrawal PayoutReason = "withdrawal"
)

// Payout is a monetary transfer owed by the ledger after an operation has
// committed. Seq is the journal sequence of the event that caused it.
type Payout struct {
	Account Account      `json:"account"`
	Amount  uint64       `json:"amount"`
	Reason  PayoutReason `json:"reason"`
	Seq     uint64       `json:"seq"`
}
