// Package ledger tracks the per-viewer token balances that gate redeems.
// Balances only grow (one token per chat message) except for the debit of a
// successful redeem, and every mutation is written through to a Store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds is returned by Spend when the balance is below the cost.
var ErrInsufficientFunds = errors.New("ledger: insufficient tokens")

// Store persists balances. Put is called after every mutation with the new balance.
type Store interface {
	Load(ctx context.Context) (map[string]int, error)
	Put(ctx context.Context, user string, balance int) error
}

// Ledger is an in-memory balance table backed by a Store.
type Ledger struct {
	store Store

	mu       sync.RWMutex
	balances map[string]int
}

// New loads all balances from store.
func New(ctx context.Context, store Store) (*Ledger, error) {
	balances, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if balances == nil {
		balances = make(map[string]int)
	}
	return &Ledger{store: store, balances: balances}, nil
}

// Balance returns the current balance of user (0 when unknown).
func (l *Ledger) Balance(user string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[user]
}

// Grant credits one token and persists. The in-memory balance is kept even when
// persistence fails; the error is returned for logging.
func (l *Ledger) Grant(ctx context.Context, user string) (int, error) {
	l.mu.Lock()
	l.balances[user]++
	bal := l.balances[user]
	l.mu.Unlock()
	if err := l.store.Put(ctx, user, bal); err != nil {
		return bal, fmt.Errorf("persist grant for %s: %w", user, err)
	}
	return bal, nil
}

// Spend debits cost tokens when the balance allows it.
func (l *Ledger) Spend(ctx context.Context, user string, cost int) (int, error) {
	l.mu.Lock()
	bal := l.balances[user]
	if bal < cost {
		l.mu.Unlock()
		return bal, ErrInsufficientFunds
	}
	bal -= cost
	l.balances[user] = bal
	l.mu.Unlock()
	if err := l.store.Put(ctx, user, bal); err != nil {
		return bal, fmt.Errorf("persist spend for %s: %w", user, err)
	}
	return bal, nil
}

// Snapshot returns a copy of all balances.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}
