package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger implements Service with in-memory balances. Used for testing
// and development; production deployments wire a real custody service.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64 // account|asset → balance
	applied  map[string]bool   // ref|asset → already transferred
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]uint64),
		applied:  make(map[string]bool),
	}
}

// Mint credits an account out of thin air. Test/dev setup only.
func (l *MemoryLedger) Mint(account, assetID string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(account, assetID)] += amount
}

func (l *MemoryLedger) Transfer(_ context.Context, from, to string, amount uint64, assetID, ref string) error {
	if amount == 0 || from == to {
		return ErrInvalidTransfer
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rk := ref + "|" + assetID
	if ref != "" && l.applied[rk] {
		return nil // idempotent replay
	}

	fk := balanceKey(from, assetID)
	if l.balances[fk] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from, l.balances[fk], amount)
	}

	l.balances[fk] -= amount
	l.balances[balanceKey(to, assetID)] += amount
	if ref != "" {
		l.applied[rk] = true // only successful transfers consume the ref
	}
	return nil
}

func (l *MemoryLedger) Balance(_ context.Context, account, assetID string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey(account, assetID)], nil
}

func balanceKey(account, assetID string) string {
	return account + "|" + assetID
}

// Compile-time interface check.
var _ Service = (*MemoryLedger)(nil)
