package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/seatledger/internal/domain"
)

// Publisher delivers committed events to downstream consumers.
type Publisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// enqueue never blocks the writer. A dropped event is recovered by
// consumers from the journal when they see the next sequence number.
func (e *Engine) enqueue(ev domain.Event) {
	select {
	case e.outbox <- ev:
	default:
		e.logger.Warn("outbox full, event not published", "seq", ev.Seq, "type", ev.Type)
	}
}

// RunPublisher drains the outbox in commit order until ctx is done. An
// event that still fails after the configured retries is logged and
// skipped.
func (e *Engine) RunPublisher(ctx context.Context, pub Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.outbox:
			if err := e.publish(ctx, pub, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				e.logger.Error("publish event", "seq", ev.Seq, "type", ev.Type, "error", err)
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, pub Publisher, ev domain.Event) error {
	var err error
	for i := 0; i < max(e.publishRetries, 1); i++ {
		if err = pub.PublishEvent(ctx, ev); err == nil {
			return nil
		}
		e.logger.Warn("publish attempt failed", "seq", ev.Seq, "attempt", i+1, "error", err)
		if i < e.publishRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.clock.After(time.Duration(i+1) * e.publishBackoff):
			}
		}
	}
	return err
}

// Broadcaster is an in-process Publisher that fans events out to live
// subscribers. A subscriber that falls behind loses events instead of
// stalling the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.Event), buffer: buffer}
}

func (b *Broadcaster) PublishEvent(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe calls handle for every event published after the call, until
// ctx is done or handle fails.
func (b *Broadcaster) Subscribe(ctx context.Context, handle func(context.Context, domain.Event) error) error {
	ch := make(chan domain.Event, b.buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if err := handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// Subscribers reports how many Subscribe calls are currently active.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

var _ Publisher = (*Broadcaster)(nil)
