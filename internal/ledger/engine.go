// Package ledger is the single writer of seat occupancy. Every state change
// is journaled as an event and then applied; the same apply path rebuilds
// state from the journal on restart.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/seatledger/internal/clock"
	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/occupancy"
)

type UseCase interface {
	ListService(ctx context.Context, provider domain.Account, input ListServiceInput) (uint64, error)
	PurchaseSeats(ctx context.Context, buyer domain.Account, serviceID uint64, seats []int, payment uint64) (uint64, error)
	Refund(ctx context.Context, caller domain.Account, ticketID uint64) error
	SetServiceActive(ctx context.Context, caller domain.Account, serviceID uint64, active bool) error
	WithdrawProvider(ctx context.Context, caller domain.Account, serviceID uint64) (uint64, error)

	GetService(ctx context.Context, serviceID uint64) (*domain.Service, error)
	GetTicket(ctx context.Context, ticketID uint64) (*domain.Ticket, error)
	IsSeatBooked(ctx context.Context, serviceID uint64, seat int) (bool, error)
	GetAvailableSeats(ctx context.Context, serviceID uint64) ([]int, error)
	GetUserTickets(ctx context.Context, buyer domain.Account) ([]uint64, error)
	GetServiceTickets(ctx context.Context, serviceID uint64) ([]uint64, error)
}

type ListServiceInput struct {
	Type         domain.ServiceType `json:"serviceType"`
	Name         string             `json:"name"`
	Origin       string             `json:"origin"`
	Destination  string             `json:"destination"`
	StartTime    time.Time          `json:"startTime"`
	PricePerSeat uint64             `json:"basePricePerSeat"`
	TotalSeats   int                `json:"totalSeats"`
}

type Engine struct {
	mu sync.Mutex

	seats     *occupancy.Store
	services  map[uint64]*domain.Service
	tickets   map[uint64]*domain.Ticket
	byBuyer   map[domain.Account][]uint64
	byService map[uint64][]uint64
	proceeds  map[uint64]uint64 // net of refunds
	withdrawn map[uint64]uint64

	lastServiceID uint64
	lastTicketID  uint64
	lastSeq       uint64

	journal Journal
	payer   Payer
	outbox  chan domain.Event
	clock   clock.Clock
	logger  *slog.Logger

	publishRetries int
	publishBackoff time.Duration
}

type Option func(*Engine)

func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

func WithPayer(p Payer) Option { return func(e *Engine) { e.payer = p } }

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithOutbox sets the capacity of the queue of committed events waiting for
// RunPublisher.
func WithOutbox(size int) Option {
	return func(e *Engine) { e.outbox = make(chan domain.Event, size) }
}

// WithPublishRetry configures how RunPublisher retries a failed publish.
func WithPublishRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.publishRetries = attempts
		e.publishBackoff = backoff
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		seats:          occupancy.NewStore(),
		services:       make(map[uint64]*domain.Service),
		tickets:        make(map[uint64]*domain.Ticket),
		byBuyer:        make(map[domain.Account][]uint64),
		byService:      make(map[uint64][]uint64),
		proceeds:       make(map[uint64]uint64),
		withdrawn:      make(map[uint64]uint64),
		publishRetries: 3,
		publishBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.journal == nil {
		e.journal = NewMemoryJournal()
	}
	if e.payer == nil {
		e.payer = NewWallet()
	}
	if e.outbox == nil {
		e.outbox = make(chan domain.Event, 1024)
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) ListService(ctx context.Context, provider domain.Account, input ListServiceInput) (uint64, error) {
	if input.Name == "" {
		return 0, domain.ErrNameRequired
	}
	if input.PricePerSeat == 0 {
		return 0, domain.ErrPriceRequired
	}
	if input.TotalSeats < 1 || input.TotalSeats > domain.MaxSeats {
		return 0, domain.ErrSeatsOutOfRange
	}
	if !input.Type.Valid() {
		return 0, domain.ErrUnknownServiceType
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !input.StartTime.After(e.clock.Now()) {
		return 0, domain.ErrStartMustBeFuture
	}

	ev, err := e.commit(ctx, domain.Event{
		Type:             domain.EventServiceListed,
		ServiceID:        e.lastServiceID + 1,
		ServiceType:      input.Type,
		Name:             input.Name,
		Origin:           input.Origin,
		Destination:      input.Destination,
		StartTime:        input.StartTime,
		BasePricePerSeat: input.PricePerSeat,
		TotalSeats:       input.TotalSeats,
		Provider:         provider,
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("service listed", "service_id", ev.ServiceID, "provider", provider, "seats", input.TotalSeats)
	return ev.ServiceID, nil
}

// PurchaseSeats books all requested seats or none. Validation order:
// empty request, unknown or inactive service, seat range, payment, then
// seat conflicts. Excess payment is returned to the buyer after commit.
func (e *Engine) PurchaseSeats(ctx context.Context, buyer domain.Account, serviceID uint64, seats []int, payment uint64) (uint64, error) {
	if len(seats) == 0 {
		return 0, domain.ErrSeatsArrayEmpty
	}

	e.mu.Lock()
	svc, ok := e.services[serviceID]
	if !ok {
		e.mu.Unlock()
		return 0, domain.ErrServiceNotFound
	}
	if !svc.IsActive {
		e.mu.Unlock()
		return 0, domain.ErrServiceInactive
	}
	if err := e.seats.CheckRange(serviceID, seats); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	price, err := seatPrice(svc.BasePricePerSeat, len(seats))
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if payment < price {
		e.mu.Unlock()
		return 0, domain.ErrInsufficientPayment
	}
	if err := e.seats.CheckFree(serviceID, seats); err != nil {
		e.mu.Unlock()
		return 0, err
	}

	ev, err := e.commit(ctx, domain.Event{
		Type:      domain.EventTicketPurchased,
		ServiceID: serviceID,
		TicketID:  e.lastTicketID + 1,
		Buyer:     buyer,
		Seats:     slices.Clone(seats),
		Amount:    price,
		Paid:      payment,
	})
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}

	e.logger.Info("seats purchased", "service_id", serviceID, "ticket_id", ev.TicketID, "buyer", buyer, "seats", seats)
	if change := payment - price; change > 0 {
		e.pay(ctx, domain.Payout{Account: buyer, Amount: change, Reason: domain.PayoutChange, Seq: ev.Seq})
	}
	return ev.TicketID, nil
}

func (e *Engine) Refund(ctx context.Context, caller domain.Account, ticketID uint64) error {
	e.mu.Lock()
	t, ok := e.tickets[ticketID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrTicketNotFound
	}
	if t.Buyer != caller {
		e.mu.Unlock()
		return domain.ErrNotTicketOwner
	}
	if t.Refunded {
		e.mu.Unlock()
		return domain.ErrAlreadyRefunded
	}
	if !e.clock.Now().Before(e.services[t.ServiceID].StartTime) {
		e.mu.Unlock()
		return domain.ErrTooLateForRefund
	}

	ev, err := e.commit(ctx, domain.Event{
		Type:      domain.EventTicketRefunded,
		ServiceID: t.ServiceID,
		TicketID:  t.ID,
		Buyer:     t.Buyer,
		Seats:     slices.Clone(t.Seats),
		Amount:    t.TotalPaid,
	})
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.logger.Info("ticket refunded", "service_id", ev.ServiceID, "ticket_id", ticketID, "amount", ev.Amount)
	e.pay(ctx, domain.Payout{Account: caller, Amount: ev.Amount, Reason: domain.PayoutRefund, Seq: ev.Seq})
	return nil
}

func (e *Engine) SetServiceActive(ctx context.Context, caller domain.Account, serviceID uint64, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	svc, ok := e.services[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	if svc.Provider != caller {
		return domain.ErrNotProvider
	}
	if _, err := e.commit(ctx, domain.Event{
		Type:      domain.EventServiceStatusChanged,
		ServiceID: serviceID,
		IsActive:  active,
	}); err != nil {
		return err
	}
	e.logger.Info("service status changed", "service_id", serviceID, "active", active)
	return nil
}

// WithdrawProvider pays out proceeds that are net of refunds and not yet
// withdrawn, and returns the amount. Proceeds stay locked until the service
// starts, since any ticket can be refunded before then.
func (e *Engine) WithdrawProvider(ctx context.Context, caller domain.Account, serviceID uint64) (uint64, error) {
	e.mu.Lock()
	svc, ok := e.services[serviceID]
	if !ok {
		e.mu.Unlock()
		return 0, domain.ErrServiceNotFound
	}
	if svc.Provider != caller {
		e.mu.Unlock()
		return 0, domain.ErrNotProvider
	}
	if e.clock.Now().Before(svc.StartTime) {
		e.mu.Unlock()
		return 0, domain.ErrRefundWindowOpen
	}
	net, done := e.proceeds[serviceID], e.withdrawn[serviceID]
	if net <= done {
		e.mu.Unlock()
		return 0, domain.ErrNothingToWithdraw
	}

	ev, err := e.commit(ctx, domain.Event{
		Type:      domain.EventProceedsWithdrawn,
		ServiceID: serviceID,
		Provider:  caller,
		Amount:    net - done,
	})
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}

	e.logger.Info("proceeds withdrawn", "service_id", serviceID, "amount", ev.Amount)
	e.pay(ctx, domain.Payout{Account: caller, Amount: ev.Amount, Reason: domain.PayoutWithdrawal, Seq: ev.Seq})
	return ev.Amount, nil
}

func (e *Engine) GetService(_ context.Context, serviceID uint64) (*domain.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, ok := e.services[serviceID]
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return e.snapshot(svc), nil
}

// Services returns every listed service in id order.
func (e *Engine) Services(_ context.Context) ([]domain.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Service, 0, len(e.services))
	for id := uint64(1); id <= e.lastServiceID; id++ {
		if svc, ok := e.services[id]; ok {
			out = append(out, *e.snapshot(svc))
		}
	}
	return out, nil
}

func (e *Engine) GetTicket(_ context.Context, ticketID uint64) (*domain.Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tickets[ticketID]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *t
	cp.Seats = slices.Clone(t.Seats)
	return &cp, nil
}

func (e *Engine) IsSeatBooked(_ context.Context, serviceID uint64, seat int) (bool, error) {
	return e.seats.IsBooked(serviceID, seat)
}

func (e *Engine) GetAvailableSeats(_ context.Context, serviceID uint64) ([]int, error) {
	return e.seats.AvailableSeats(serviceID)
}

func (e *Engine) GetUserTickets(_ context.Context, buyer domain.Account) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.byBuyer[buyer]), nil
}

func (e *Engine) GetServiceTickets(_ context.Context, serviceID uint64) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.services[serviceID]; !ok {
		return nil, domain.ErrServiceNotFound
	}
	return slices.Clone(e.byService[serviceID]), nil
}

// LastSeq is the sequence number of the last committed event.
func (e *Engine) LastSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeq
}

// Restore replays the journal into an empty engine. Payouts are not
// repeated and nothing is queued for publishing.
func (e *Engine) Restore(ctx context.Context) error {
	const page = 500

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSeq != 0 {
		return fmt.Errorf("restore: engine already holds %d events", e.lastSeq)
	}
	for {
		events, err := e.journal.Since(ctx, e.lastSeq, page)
		if err != nil {
			return fmt.Errorf("restore: read journal: %w", err)
		}
		for _, ev := range events {
			if ev.Seq != e.lastSeq+1 {
				return fmt.Errorf("restore: %w: got %d after %d", ErrSequenceConflict, ev.Seq, e.lastSeq)
			}
			if err := e.apply(ev); err != nil {
				return fmt.Errorf("restore: apply event %d: %w", ev.Seq, err)
			}
			e.lastSeq = ev.Seq
		}
		if len(events) < page {
			break
		}
	}
	if e.lastSeq > 0 {
		e.logger.Info("ledger restored", "events", e.lastSeq, "services", len(e.services), "tickets", len(e.tickets))
	}
	return nil
}

// commit journals ev, applies it and queues it for publishing. The caller
// holds e.mu and has already validated every precondition.
func (e *Engine) commit(ctx context.Context, ev domain.Event) (domain.Event, error) {
	ev.Seq = e.lastSeq + 1
	ev.At = e.clock.Now()
	if err := e.journal.Append(ctx, ev); err != nil {
		return domain.Event{}, fmt.Errorf("append event: %w", err)
	}
	e.lastSeq = ev.Seq
	if err := e.apply(ev); err != nil {
		// The journal already holds ev; state and journal now disagree
		// until the next restore.
		e.logger.Error("apply committed event", "seq", ev.Seq, "type", ev.Type, "error", err)
		return domain.Event{}, fmt.Errorf("apply event %d: %w", ev.Seq, err)
	}
	e.enqueue(ev)
	return ev, nil
}

func (e *Engine) apply(ev domain.Event) error {
	switch ev.Type {
	case domain.EventServiceListed:
		if err := e.seats.Add(ev.ServiceID, ev.TotalSeats); err != nil {
			return err
		}
		e.services[ev.ServiceID] = &domain.Service{
			ID:               ev.ServiceID,
			Type:             ev.ServiceType,
			Provider:         ev.Provider,
			Name:             ev.Name,
			Origin:           ev.Origin,
			Destination:      ev.Destination,
			StartTime:        ev.StartTime,
			BasePricePerSeat: ev.BasePricePerSeat,
			TotalSeats:       ev.TotalSeats,
			IsActive:         true,
			ListedAt:         ev.At,
		}
		e.lastServiceID = max(e.lastServiceID, ev.ServiceID)

	case domain.EventTicketPurchased:
		if err := e.seats.MarkBooked(ev.ServiceID, ev.Seats); err != nil {
			return err
		}
		e.tickets[ev.TicketID] = &domain.Ticket{
			ID:          ev.TicketID,
			ServiceID:   ev.ServiceID,
			Buyer:       ev.Buyer,
			Seats:       slices.Clone(ev.Seats),
			TotalPaid:   ev.Amount,
			PurchasedAt: ev.At,
		}
		e.byBuyer[ev.Buyer] = append(e.byBuyer[ev.Buyer], ev.TicketID)
		e.byService[ev.ServiceID] = append(e.byService[ev.ServiceID], ev.TicketID)
		e.proceeds[ev.ServiceID] += ev.Amount
		e.lastTicketID = max(e.lastTicketID, ev.TicketID)

	case domain.EventTicketRefunded:
		t, ok := e.tickets[ev.TicketID]
		if !ok {
			return domain.ErrTicketNotFound
		}
		if err := e.seats.MarkAvailable(t.ServiceID, t.Seats); err != nil {
			return err
		}
		t.Refunded = true
		e.proceeds[t.ServiceID] -= t.TotalPaid

	case domain.EventServiceStatusChanged:
		svc, ok := e.services[ev.ServiceID]
		if !ok {
			return domain.ErrServiceNotFound
		}
		if err := e.seats.SetActive(ev.ServiceID, ev.IsActive); err != nil {
			return err
		}
		svc.IsActive = ev.IsActive

	case domain.EventProceedsWithdrawn:
		if _, ok := e.services[ev.ServiceID]; !ok {
			return domain.ErrServiceNotFound
		}
		e.withdrawn[ev.ServiceID] += ev.Amount

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

func (e *Engine) snapshot(svc *domain.Service) *domain.Service {
	cp := *svc
	cp.Bitmap, _ = e.seats.Bitmap(svc.ID)
	return &cp
}

func (e *Engine) pay(ctx context.Context, payout domain.Payout) {
	if err := e.payer.Pay(ctx, payout); err != nil {
		e.logger.Error("payout failed", "account", payout.Account, "amount", payout.Amount,
			"reason", payout.Reason, "seq", payout.Seq, "error", err)
	}
}

func seatPrice(perSeat uint64, count int) (uint64, error) {
	hi, lo := bits.Mul64(perSeat, uint64(count))
	if hi != 0 {
		return 0, domain.ErrAmountOverflow
	}
	return lo, nil
}

var _ UseCase = (*Engine)(nil)
