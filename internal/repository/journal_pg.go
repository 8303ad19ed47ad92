package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	seq        BIGINT PRIMARY KEY,
	type       TEXT        NOT NULL,
	service_id BIGINT      NOT NULL,
	at         TIMESTAMPTZ NOT NULL,
	payload    JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_service_idx ON ledger_events (service_id, seq);
`

type JournalRepository interface {
	ledger.Journal
	EnsureSchema(ctx context.Context) error
	LastSeq(ctx context.Context) (uint64, error)
}

type PGJournalRepository struct {
	db *pgxpool.Pool
}

func NewJournalRepository(db *pgxpool.Pool) JournalRepository {
	return &PGJournalRepository{db: db}
}

func (r *PGJournalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create ledger_events: %w", err)
	}
	return nil
}

// Append stores event only if it directly follows the last stored seq.
func (r *PGJournalRepository) Append(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var last uint64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&last); err != nil {
		return err
	}
	if event.Seq != last+1 {
		return fmt.Errorf("%w: got %d, want %d", ledger.ErrSequenceConflict, event.Seq, last+1)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_events (seq, type, service_id, at, payload) VALUES ($1, $2, $3, $4, $5)`,
		event.Seq, string(event.Type), event.ServiceID, event.At, payload); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: seq %d already stored", ledger.ErrSequenceConflict, event.Seq)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGJournalRepository) Since(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.db.Query(ctx, `SELECT payload FROM ledger_events WHERE seq > $1 ORDER BY seq LIMIT $2`, after, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event after %d: %w", after, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PGJournalRepository) LastSeq(ctx context.Context) (uint64, error) {
	var last uint64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&last); err != nil {
		return 0, err
	}
	return last, nil
}

type headReader interface {
	LastSeq(ctx context.Context) (uint64, error)
}

// VerifyHead fails when a ledger restored up to restored does not end at
// the journal head.
func VerifyHead(ctx context.Context, journal headReader, restored uint64) error {
	head, err := journal.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("journal head: %w", err)
	}
	if head != restored {
		return fmt.Errorf("%w: restored ledger at seq %d, journal head is %d", ledger.ErrSequenceConflict, restored, head)
	}
	return nil
}

var _ JournalRepository = (*PGJournalRepository)(nil)
