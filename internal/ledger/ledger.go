// Package ledger defines the token custody collaborator the engine delegates
// value movement to. The engine never holds balances itself: stakes move from
// user accounts into per-outcome escrow holding areas, payouts move back out,
// and fees are swept from the treasury holding area.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned when the source holding area cannot
	// cover the transfer amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInvalidTransfer is returned for zero-amount or same-account transfers.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer")
)

// Service moves value between holding areas. A transfer either fully applies
// or fully fails; the engine treats any failure as aborting the surrounding
// operation with no state committed.
//
// ref is an idempotency reference: a Service must apply at most one transfer
// per (ref, asset) pair, so the engine can safely retry a transfer after a
// crash without double-paying. A replayed ref returns nil without moving
// funds again.
type Service interface {
	Transfer(ctx context.Context, from, to string, amount uint64, assetID, ref string) error
	Balance(ctx context.Context, account, assetID string) (uint64, error)
}
