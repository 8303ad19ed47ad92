// Package replicator mirrors ledger state for read paths. It backfills the
// journal from the last checkpointed offset, then follows the live feed.
// Each relevant event triggers a full re-read of the affected service from
// the authoritative source, so replaying an event is harmless.
package replicator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/seatledger/internal/clock"
	"github.com/Domenick1991/seatledger/internal/domain"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateBackfilling  State = "backfilling"
	StateLive         State = "live"
	StateDegraded     State = "degraded"
)

// Source is the authoritative state the mirror is refreshed from.
type Source interface {
	GetService(ctx context.Context, serviceID uint64) (*domain.Service, error)
}

// History serves committed events in order.
type History interface {
	Since(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

// Feed delivers live events. Subscribe blocks until ctx is done or the
// subscription fails.
type Feed interface {
	Subscribe(ctx context.Context, handle func(context.Context, domain.Event) error) error
}

// Checkpoint persists the offset together with the mirror entries that
// reflect it. Reset discards both.
type Checkpoint interface {
	Load(ctx context.Context) (uint64, []Entry, error)
	Save(ctx context.Context, offset uint64, entries []Entry) error
	Reset(ctx context.Context) error
}

// Invalidator drops derived views of a service.
type Invalidator interface {
	Invalidate(ctx context.Context, serviceID uint64)
}

// Entry is the mirrored snapshot of one service. Seq is the offset at
// which it was last refreshed. Stale entries could not be refreshed after
// a later event touched the service.
type Entry struct {
	Service     domain.Service `json:"service" cbor:"1,keyasint"`
	Seq         uint64         `json:"seq" cbor:"2,keyasint"`
	RefreshedAt time.Time      `json:"refreshedAt" cbor:"3,keyasint"`
	Stale       bool           `json:"stale" cbor:"4,keyasint"`
}

type Status struct {
	State       State     `json:"state"`
	Offset      uint64    `json:"offset"`
	Services    int       `json:"services"`
	Pending     []uint64  `json:"pending"`
	LastError   string    `json:"lastError,omitempty"`
	LastEventAt time.Time `json:"lastEventAt,omitzero"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
}

type Config struct {
	BatchSize     int
	RetryBase     time.Duration
	RetryMax      time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		RetryBase:     500 * time.Millisecond,
		RetryMax:      30 * time.Second,
		MaxAttempts:   5,
		SweepInterval: 10 * time.Second,
	}
}

type Replicator struct {
	source  Source
	history History
	feed    Feed

	checkpoint  Checkpoint
	invalidator Invalidator
	clock       clock.Clock
	logger      *slog.Logger
	cfg         Config

	// process serializes event handling between backfill, the live feed
	// and the retry sweep.
	process sync.Mutex

	mu          sync.RWMutex
	entries     map[uint64]Entry
	offset      uint64
	state       State
	pending     map[uint64]struct{}
	lastErr     string
	lastEventAt time.Time
	startedAt   time.Time
}

type Option func(*Replicator)

func WithCheckpoint(c Checkpoint) Option { return func(r *Replicator) { r.checkpoint = c } }

func WithInvalidator(i Invalidator) Option { return func(r *Replicator) { r.invalidator = i } }

func WithClock(c clock.Clock) Option { return func(r *Replicator) { r.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Replicator) { r.logger = l } }

func WithConfig(cfg Config) Option { return func(r *Replicator) { r.cfg = cfg } }

func New(source Source, history History, feed Feed, opts ...Option) *Replicator {
	r := &Replicator{
		source:  source,
		history: history,
		feed:    feed,
		cfg:     DefaultConfig(),
		entries: make(map[uint64]Entry),
		pending: make(map[uint64]struct{}),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = DefaultConfig().BatchSize
	}
	if r.cfg.MaxAttempts <= 0 {
		r.cfg.MaxAttempts = 1
	}
	return r
}

// SetInvalidator attaches the cache to notify once the replicator exists.
// Call it before Run.
func (r *Replicator) SetInvalidator(i Invalidator) { r.invalidator = i }

// Load restores the checkpointed offset and entries. Run calls it; it is
// exported for callers that want the mirror populated before serving.
func (r *Replicator) Load(ctx context.Context) error {
	if r.checkpoint == nil {
		return nil
	}
	offset, entries, err := r.checkpoint.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = offset
	for _, e := range entries {
		r.entries[e.Service.ID] = e
		if e.Stale {
			r.pending[e.Service.ID] = struct{}{}
		}
	}
	r.logger.Info("checkpoint loaded", "offset", offset, "services", len(entries))
	return nil
}

// Run backfills, then follows the live feed until ctx is done. Feed or
// history failures move the replicator to disconnected, and it reconnects
// with backoff, backfilling whatever it missed.
func (r *Replicator) Run(ctx context.Context) error {
	r.mu.Lock()
	r.startedAt = r.clock.Now()
	r.mu.Unlock()

	if err := r.Load(ctx); err != nil {
		return err
	}
	if err := r.verifyOffset(ctx); err != nil {
		return err
	}

	go r.sweep(ctx)

	attempt := 0
	for ctx.Err() == nil {
		r.setState(StateBackfilling)
		if err := r.Backfill(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			r.disconnected(err)
			attempt++
			if !r.wait(ctx, r.backoff(attempt)) {
				break
			}
			continue
		}
		attempt = 0
		r.settle()

		err := r.feed.Subscribe(ctx, r.HandleLive)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			err = errors.New("feed closed")
		}
		r.disconnected(err)
		attempt++
		if !r.wait(ctx, r.backoff(attempt)) {
			break
		}
	}
	r.setState(StateDisconnected)
	return nil
}

// verifyOffset drops a checkpoint whose offset the journal never reached,
// as happens when the journal was replaced. The mirror is then rebuilt
// from the start.
func (r *Replicator) verifyOffset(ctx context.Context) error {
	offset := r.Offset()
	if offset == 0 {
		return nil
	}
	events, err := r.history.Since(ctx, offset-1, 1)
	if err != nil {
		return fmt.Errorf("verify checkpoint offset: %w", err)
	}
	if len(events) > 0 && events[0].Seq == offset {
		return nil
	}

	r.logger.Warn("checkpoint is ahead of the journal, rebuilding mirror", "offset", offset)
	r.mu.Lock()
	stale := make([]uint64, 0, len(r.entries))
	for id := range r.entries {
		stale = append(stale, id)
	}
	r.offset = 0
	clear(r.entries)
	clear(r.pending)
	r.mu.Unlock()

	if r.checkpoint != nil {
		if err := r.checkpoint.Reset(ctx); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
	}
	if r.invalidator != nil {
		for _, id := range stale {
			r.invalidator.Invalidate(ctx, id)
		}
	}
	return nil
}

// Backfill processes every journaled event after the current offset.
func (r *Replicator) Backfill(ctx context.Context) error {
	r.process.Lock()
	defer r.process.Unlock()
	return r.backfill(ctx, 0)
}

// HandleLive processes one event from the live feed. Events at or below
// the offset are skipped; a gap is filled from history first.
func (r *Replicator) HandleLive(ctx context.Context, ev domain.Event) error {
	r.process.Lock()
	defer r.process.Unlock()

	offset := r.Offset()
	if ev.Seq <= offset {
		return nil
	}
	if ev.Seq > offset+1 {
		r.logger.Info("gap in live feed, backfilling", "offset", offset, "seq", ev.Seq)
		if err := r.backfill(ctx, ev.Seq-1); err != nil {
			return fmt.Errorf("backfill gap before %d: %w", ev.Seq, err)
		}
		if r.Offset() != ev.Seq-1 {
			return fmt.Errorf("history ends at %d, live event is %d", r.Offset(), ev.Seq)
		}
	}
	r.apply(ctx, ev)
	r.settle()
	return nil
}

func (r *Replicator) backfill(ctx context.Context, upTo uint64) error {
	for {
		events, err := r.history.Since(ctx, r.Offset(), r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		for _, ev := range events {
			if upTo > 0 && ev.Seq > upTo {
				return nil
			}
			r.apply(ctx, ev)
		}
		if len(events) < r.cfg.BatchSize {
			return nil
		}
	}
}

func (r *Replicator) apply(ctx context.Context, ev domain.Event) {
	var changed *Entry
	if ev.Touches() {
		entry := r.refresh(ctx, ev)
		changed = &entry
		if r.invalidator != nil {
			r.invalidator.Invalidate(ctx, ev.ServiceID)
		}
	}

	r.mu.Lock()
	if ev.Seq > r.offset {
		r.offset = ev.Seq
	}
	r.lastEventAt = r.clock.Now()
	offset := r.offset
	r.mu.Unlock()

	r.save(ctx, offset, changed)
}

// refresh pulls the current state of ev's service. On failure it keeps
// the previous entry marked stale; a ServiceListed event with no previous
// entry falls back to the listing payload, which is exact at ev.Seq.
func (r *Replicator) refresh(ctx context.Context, ev domain.Event) Entry {
	svc, err := r.fetch(ctx, ev.ServiceID)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()

	if err == nil {
		entry := Entry{Service: *svc, Seq: ev.Seq, RefreshedAt: now}
		r.entries[ev.ServiceID] = entry
		delete(r.pending, ev.ServiceID)
		return entry
	}

	r.lastErr = err.Error()
	r.pending[ev.ServiceID] = struct{}{}
	r.logger.Warn("refresh failed, entry marked stale", "service_id", ev.ServiceID, "seq", ev.Seq, "error", err)

	entry, ok := r.entries[ev.ServiceID]
	if !ok && ev.Type == domain.EventServiceListed {
		entry = Entry{Service: listedService(ev), Seq: ev.Seq, RefreshedAt: now}
	}
	entry.Stale = true
	if entry.Service.ID != 0 {
		r.entries[ev.ServiceID] = entry
	}
	return entry
}

func (r *Replicator) fetch(ctx context.Context, serviceID uint64) (*domain.Service, error) {
	var err error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 && !r.wait(ctx, r.backoff(attempt)) {
			return nil, ctx.Err()
		}
		var svc *domain.Service
		if svc, err = r.source.GetService(ctx, serviceID); err == nil {
			return svc, nil
		}
		if errors.Is(err, domain.ErrServiceNotFound) || ctx.Err() != nil {
			break
		}
	}
	return nil, err
}

// RetryPending refreshes every service whose entry is stale. Once nothing
// is pending a degraded replicator returns to live.
func (r *Replicator) RetryPending(ctx context.Context) {
	r.process.Lock()
	defer r.process.Unlock()

	for _, id := range r.pendingIDs() {
		svc, err := r.fetch(ctx, id)
		if err != nil {
			r.mu.Lock()
			r.lastErr = err.Error()
			r.mu.Unlock()
			continue
		}
		r.mu.Lock()
		entry := Entry{Service: *svc, Seq: r.offset, RefreshedAt: r.clock.Now()}
		r.entries[id] = entry
		delete(r.pending, id)
		offset := r.offset
		r.mu.Unlock()

		r.logger.Info("stale entry refreshed", "service_id", id)
		if r.invalidator != nil {
			r.invalidator.Invalidate(ctx, id)
		}
		r.save(ctx, offset, &entry)
	}
	r.settle()
}

// sweep periodically retries stale entries and catches up on journaled
// events the live feed has not delivered, such as one committed between
// backfill and subscription.
func (r *Replicator) sweep(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}
	for r.wait(ctx, r.cfg.SweepInterval) {
		if r.State() == StateLive || r.State() == StateDegraded {
			if err := r.CatchUp(ctx); err != nil {
				r.logger.Warn("catch up", "error", err)
			}
		}
		if len(r.pendingIDs()) > 0 {
			r.RetryPending(ctx)
		}
	}
}

// CatchUp backfills if the journal holds events past the offset.
func (r *Replicator) CatchUp(ctx context.Context) error {
	r.process.Lock()
	defer r.process.Unlock()

	offset := r.Offset()
	events, err := r.history.Since(ctx, offset, 1)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	r.logger.Info("journal ahead of live feed, backfilling", "offset", offset, "seq", events[0].Seq)
	if err := r.backfill(ctx, 0); err != nil {
		return err
	}
	r.settle()
	return nil
}

func (r *Replicator) save(ctx context.Context, offset uint64, changed *Entry) {
	if r.checkpoint == nil {
		return
	}
	var entries []Entry
	if changed != nil && changed.Service.ID != 0 {
		entries = []Entry{*changed}
	}
	if err := r.checkpoint.Save(ctx, offset, entries); err != nil {
		r.logger.Error("save checkpoint", "offset", offset, "error", err)
	}
}

// settle moves a connected replicator to live or degraded depending on
// whether stale entries remain.
func (r *Replicator) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := StateLive
	if len(r.pending) > 0 {
		next = StateDegraded
	}
	r.transition(next)
}

func (r *Replicator) disconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err.Error()
	r.transition(StateDisconnected)
	r.logger.Warn("replicator disconnected", "error", err)
}

func (r *Replicator) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transition(s)
}

func (r *Replicator) transition(s State) {
	if r.state == s {
		return
	}
	r.logger.Info("replicator state", "from", r.state, "to", s)
	r.state = s
}

func (r *Replicator) backoff(attempt int) time.Duration {
	d := r.cfg.RetryBase
	for i := 1; i < attempt && d < r.cfg.RetryMax; i++ {
		d *= 2
	}
	if r.cfg.RetryMax > 0 && d > r.cfg.RetryMax {
		d = r.cfg.RetryMax
	}
	return d
}

func (r *Replicator) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}

func (r *Replicator) pendingIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Replicator) Offset() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offset
}

func (r *Replicator) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Lookup returns the mirrored entry of a service.
func (r *Replicator) Lookup(serviceID uint64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[serviceID]
	return e, ok
}

// Entries returns every mirrored entry ordered by service id.
func (r *Replicator) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Service.ID, b.Service.ID) })
	return out
}

func (r *Replicator) Status() Status {
	pending := r.pendingIDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		State:       r.state,
		Offset:      r.offset,
		Services:    len(r.entries),
		Pending:     pending,
		LastError:   r.lastErr,
		LastEventAt: r.lastEventAt,
		StartedAt:   r.startedAt,
	}
}

func listedService(ev domain.Event) domain.Service {
	return domain.Service{
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
}
