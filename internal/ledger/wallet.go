package ledger

import (
	"context"
	"sync"

	"github.com/Domenick1991/seatledger/internal/domain"
)

// Payer moves money out of the ledger. It is called only after the
// operation that owes the payout has committed.
type Payer interface {
	Pay(ctx context.Context, payout domain.Payout) error
}

// Wallet is an in-memory Payer that credits account balances.
type Wallet struct {
	mu       sync.RWMutex
	balances map[domain.Account]uint64
	history  []domain.Payout
}

func NewWallet() *Wallet {
	return &Wallet{balances: make(map[domain.Account]uint64)}
}

func (w *Wallet) Pay(_ context.Context, payout domain.Payout) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[payout.Account] += payout.Amount
	w.history = append(w.history, payout)
	return nil
}

func (w *Wallet) BalanceOf(account domain.Account) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[account]
}

// Payouts returns every payout credited so far, in order.
func (w *Wallet) Payouts() []domain.Payout {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]domain.Payout(nil), w.history...)
}

var _ Payer = (*Wallet)(nil)
