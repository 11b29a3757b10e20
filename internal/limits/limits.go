// Package limits implements optional stake limits applied before a bet is
// accepted.
//
// Two caps are enforced per user: the cumulative stake on a single position
// (one outcome of one market), and the aggregate stake across all of the
// user's positions within one market. Either cap set to zero is treated as
// unlimited. Limits are a risk guard layered on top of the core checks; they
// never relax them.
package limits

import (
	"errors"
	"math"
)

var (
	// ErrPositionLimitExceeded is returned when a bet would push a single
	// position's cumulative stake beyond the per-position maximum.
	ErrPositionLimitExceeded = errors.New("limits: per-position stake limit exceeded")

	// ErrMarketLimitExceeded is returned when a bet would push the user's
	// aggregate stake across the market beyond the per-market maximum.
	ErrMarketLimitExceeded = errors.New("limits: per-market stake limit exceeded")
)

// StakeLimiter enforces per-position and per-market stake caps.
type StakeLimiter struct {
	// MaxPerPosition is the maximum cumulative stake on any single position.
	// Zero disables the check.
	MaxPerPosition uint64

	// MaxPerMarket is the maximum aggregate stake across all of a user's
	// positions within one market. Zero disables the check.
	MaxPerMarket uint64
}

// NewStakeLimiter creates a limiter with the given caps.
func NewStakeLimiter(maxPerPosition, maxPerMarket uint64) *StakeLimiter {
	return &StakeLimiter{
		MaxPerPosition: maxPerPosition,
		MaxPerMarket:   maxPerMarket,
	}
}

// CheckLimit validates whether adding amount to the user's position on
// targetOutcome respects the configured caps.
//
// existing maps outcome ID → the user's current stake on that outcome within
// the market being bet on. Saturating addition keeps the comparison safe even
// near uint64 limits; the betting path re-checks with strict overflow errors.
func (l *StakeLimiter) CheckLimit(targetOutcome uint8, amount uint64, existing map[uint8]uint64) error {
	newPosition := satAdd(existing[targetOutcome], amount)

	if l.MaxPerPosition > 0 && newPosition > l.MaxPerPosition {
		return ErrPositionLimitExceeded
	}

	if l.MaxPerMarket > 0 {
		total := newPosition
		for outcomeID, staked := range existing {
			if outcomeID == targetOutcome {
				continue // already counted via newPosition
			}
			total = satAdd(total, staked)
		}
		if total > l.MaxPerMarket {
			return ErrMarketLimitExceeded
		}
	}

	return nil
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
