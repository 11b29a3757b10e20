// Package model defines the core domain types shared across the settlement
// engine. All monetary values are uint64 token base units — arithmetic on
// them must go through the checked helpers in internal/settlement.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market status values. Locked is declared for wire compatibility with the
// on-chain account layout but no transition into it exists; Active is the
// only pre-terminal state reachable at runtime.
const (
	StatusActive    = "active"
	StatusLocked    = "locked"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

// PlatformConfig is the process-wide platform configuration. Created once at
// initialization, mutated only by admin operations, never destroyed.
type PlatformConfig struct {
	Admin             string `json:"admin" db:"admin"`
	OracleAuthority   string `json:"oracle_authority" db:"oracle_authority"`
	Treasury          string `json:"treasury" db:"treasury"`
	Asset             string `json:"asset" db:"asset"` // settlement asset, e.g. "USDC-6"
	DefaultFeePercent uint8  `json:"default_fee_percent" db:"default_fee_percent"`
	MarketsCount      uint64 `json:"markets_count" db:"markets_count"` // source of market IDs
	TotalVolume       uint64 `json:"total_volume" db:"total_volume"`   // informational, not settlement input
	Paused            bool   `json:"paused" db:"paused"`
}

// Market is one proposition being wagered on. StartTime/EndTime, FeePercent
// and Oracle are fixed at creation; Winner is set exactly once, at resolution.
type Market struct {
	ID          uint64    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Creator     string    `json:"creator" db:"creator"`
	Outcomes    []uint8   `json:"outcomes" db:"outcomes"` // registration order
	TotalPool   uint64    `json:"total_pool" db:"total_pool"`
	Winner      *uint8    `json:"winner,omitempty" db:"winner"`
	StartTime   time.Time `json:"start_time" db:"start_time"`
	EndTime     time.Time `json:"end_time" db:"end_time"`
	FeePercent  uint8     `json:"fee_percent" db:"fee_percent"`
	Oracle      string    `json:"oracle" db:"oracle"` // bound at creation, not rotated
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// HasOutcome reports whether id is a registered outcome of the market.
func (m *Market) HasOutcome(id uint8) bool {
	for _, o := range m.Outcomes {
		if o == id {
			return true
		}
	}
	return false
}

// Terminal reports whether the market has reached a terminal state.
func (m *Market) Terminal() bool {
	return m.Status == StatusResolved || m.Status == StatusCancelled
}

// Outcome is one possible result within a market, identified by (market, id).
// Odds is a reserved pricing weight — always 1.0 in the current design and
// never consumed by settlement math.
type Outcome struct {
	MarketID    uint64          `json:"market_id" db:"market_id"`
	ID          uint8           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Escrow      string          `json:"escrow" db:"escrow"` // holding area for stakes on this outcome
	TotalStaked uint64          `json:"total_staked" db:"total_staked"`
	Odds        decimal.Decimal `json:"odds" db:"odds"`
}

// ImpliedOdds returns the parimutuel implied odds for the outcome given the
// market's total pool: pool / staked. Display-only; settlement never uses it.
func (o *Outcome) ImpliedOdds(totalPool uint64) decimal.Decimal {
	if o.TotalStaked == 0 {
		return decimal.Zero
	}
	pool := decimal.NewFromUint64(totalPool)
	staked := decimal.NewFromUint64(o.TotalStaked)
	return pool.Div(staked).Round(4)
}

// UserPosition is one participant's cumulative stake on one outcome of one
// market, identified by (user, market, outcome). Repeated bets on the same
// outcome merge into the same position. Claimed flips false→true exactly once
// and a claimed position must never be paid again.
type UserPosition struct {
	User      string    `json:"user" db:"user_id"`
	MarketID  uint64    `json:"market_id" db:"market_id"`
	OutcomeID uint8     `json:"outcome_id" db:"outcome_id"`
	Amount    uint64    `json:"amount" db:"amount"`
	Shares    uint64    `json:"shares" db:"shares"` // reserved; equals Amount at fixed 1:1 pricing
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Claimed   bool      `json:"claimed" db:"claimed"`
}
