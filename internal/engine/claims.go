package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oddspool/settlement-engine/internal/model"
	"github.com/oddspool/settlement-engine/internal/settlement"
	"github.com/oddspool/settlement-engine/internal/store"
)

// claimRef derives the idempotency reference for a position's payout
// transfer. Deterministic per position: a crash between the transfer and the
// claimed-flag commit can be retried without paying twice, because the ledger
// applies at most one transfer per reference.
func claimRef(user string, marketID uint64, outcomeID uint8) string {
	return fmt.Sprintf("claim:%d:%d:%s", marketID, outcomeID, user)
}

// ClaimPayout settles one winning position. The payout is the position's
// pro-rata share of the fee-adjusted pool; on success the escrowed amount
// moves to the user and the position is marked claimed. The claimed-flag
// check and flip happen under the engine mutex, so a position can never be
// paid twice by interleaved claims.
func (e *Engine) ClaimPayout(ctx context.Context, caller string, marketID uint64, outcomeID uint8) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if market.Status != model.StatusResolved {
		return 0, ErrMarketNotResolved
	}
	if market.Winner == nil || *market.Winner != outcomeID {
		return 0, ErrNotWinner
	}

	position, err := e.store.GetPosition(ctx, caller, marketID, outcomeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNotWinner
		}
		return 0, err
	}
	if position.User != caller {
		return 0, ErrNotPositionOwner
	}
	if position.Claimed {
		return 0, ErrAlreadyClaimed
	}

	outcome, err := e.store.GetOutcome(ctx, marketID, outcomeID)
	if err != nil {
		return 0, err
	}

	payout, err := settlement.Payout(market.TotalPool, market.FeePercent, position.Amount, outcome.TotalStaked)
	if err != nil {
		return 0, err
	}

	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return 0, err
	}

	// Transfer first, flag last: the deterministic reference makes a retry
	// after a crash safe, and an unflipped flag after a paid transfer
	// re-enters here and no-ops at the ledger. A payout floored to zero has
	// nothing to move but still consumes the claim.
	ref := claimRef(caller, marketID, outcomeID)
	if payout > 0 {
		if err := e.ledger.Transfer(ctx, outcome.Escrow, caller, payout, cfg.Asset, ref); err != nil {
			return 0, fmt.Errorf("payout transfer: %w", err)
		}
	}

	position.Claimed = true
	if err := e.store.SavePosition(ctx, position); err != nil {
		return 0, err
	}

	slog.Info("payout claimed",
		"user", caller,
		"market", marketID,
		"outcome", outcomeID,
		"stake", position.Amount,
		"payout", payout,
		"transfer_ref", ref,
	)
	return payout, nil
}
