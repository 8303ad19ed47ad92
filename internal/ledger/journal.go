package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Domenick1991/seatledger/internal/domain"
)

// ErrSequenceConflict is returned by a Journal when an appended event does
// not directly follow the last stored one.
var ErrSequenceConflict = errors.New("journal sequence conflict")

// Journal is the append-only record of committed events, totally ordered
// by Seq.
type Journal interface {
	Append(ctx context.Context, event domain.Event) error
	// Since returns up to limit events with Seq > after, ascending.
	Since(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

type MemoryJournal struct {
	mu     sync.RWMutex
	events []domain.Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if want := uint64(len(j.events)) + 1; event.Seq != want {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceConflict, event.Seq, want)
	}
	j.events = append(j.events, cloneEvent(event))
	return nil
}

func (j *MemoryJournal) Since(_ context.Context, after uint64, limit int) ([]domain.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if after >= uint64(len(j.events)) {
		return nil, nil
	}
	end := uint64(len(j.events))
	if limit > 0 && after+uint64(limit) < end {
		end = after + uint64(limit)
	}
	out := make([]domain.Event, 0, end-after)
	for _, ev := range j.events[after:end] {
		out = append(out, cloneEvent(ev))
	}
	return out, nil
}

func cloneEvent(ev domain.Event) domain.Event {
	if ev.Seats != nil {
		ev.Seats = append([]int(nil), ev.Seats...)
	}
	return ev
}

var _ Journal = (*MemoryJournal)(nil)
