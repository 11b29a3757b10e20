// Package store defines the persistence interface for the settlement engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/oddspool/settlement-engine/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned on duplicate creation.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. Each method loads or saves one record;
// the engine serializes mutating operations so the checked-addition sequences
// on pool totals are never lost to a race.
type Store interface {
	// --- Platform config (singleton) ---

	// CreatePlatform persists the platform config; fails if already initialized.
	CreatePlatform(ctx context.Context, p *model.PlatformConfig) error

	// GetPlatform retrieves the platform config.
	GetPlatform(ctx context.Context) (*model.PlatformConfig, error)

	// UpdatePlatform saves a mutated platform config.
	UpdatePlatform(ctx context.Context, p *model.PlatformConfig) error

	// --- Markets ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by ID.
	GetMarket(ctx context.Context, id uint64) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarket saves a mutated market (pool, status, winner, outcomes).
	UpdateMarket(ctx context.Context, m *model.Market) error

	// --- Outcomes ---

	// CreateOutcome persists a new outcome.
	CreateOutcome(ctx context.Context, o *model.Outcome) error

	// GetOutcome retrieves an outcome by (market, id).
	GetOutcome(ctx context.Context, marketID uint64, id uint8) (*model.Outcome, error)

	// ListOutcomes returns a market's outcomes in registration order.
	ListOutcomes(ctx context.Context, marketID uint64) ([]model.Outcome, error)

	// UpdateOutcome saves a mutated outcome (total staked).
	UpdateOutcome(ctx context.Context, o *model.Outcome) error

	// --- Positions ---

	// GetPosition retrieves a position by (user, market, outcome).
	GetPosition(ctx context.Context, user string, marketID uint64, outcomeID uint8) (*model.UserPosition, error)

	// SavePosition creates or updates a position.
	SavePosition(ctx context.Context, p *model.UserPosition) error

	// ListPositionsByUser returns all positions held by a user.
	ListPositionsByUser(ctx context.Context, user string) ([]model.UserPosition, error)

	// ListPositionsByMarket returns all positions within a market.
	ListPositionsByMarket(ctx context.Context, marketID uint64) ([]model.UserPosition, error)
}
