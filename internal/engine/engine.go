// Package engine implements the market lifecycle controller and betting
// ledger: platform initialization, market creation and resolution, outcome
// registration, bet placement, and the admin fee sweep. Claim settlement
// lives in claims.go; the payout arithmetic itself is in internal/settlement.
//
// Authentication happens upstream — the engine receives an already-verified
// caller identity per call and performs only authorization (role matching).
// Role checks are evaluated at call time, never cached.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddspool/settlement-engine/internal/asset"
	"github.com/oddspool/settlement-engine/internal/ledger"
	"github.com/oddspool/settlement-engine/internal/limits"
	"github.com/oddspool/settlement-engine/internal/model"
	"github.com/oddspool/settlement-engine/internal/settlement"
	"github.com/oddspool/settlement-engine/internal/store"
)

// DefaultFeePercent is applied when the platform is initialized without an
// explicit fee.
const DefaultFeePercent uint8 = 2

// Clock supplies the trusted current time. The engine never calls time.Now
// directly; temporal preconditions are evaluated once per operation.
type Clock func() time.Time

// Engine coordinates the market lifecycle against the store and delegates
// value movement to the ledger. A single mutex serializes mutating operations
// (single-instance deployment); for horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Engine struct {
	store   store.Store
	ledger  ledger.Service
	limiter *limits.StakeLimiter // nil disables stake limits
	clock   Clock
	mu      sync.Mutex
}

// New creates an engine. Pass nil for limiter to disable stake limits and nil
// for clock to use the system clock.
func New(st store.Store, lg ledger.Service, limiter *limits.StakeLimiter, clock Clock) *Engine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:   st,
		ledger:  lg,
		limiter: limiter,
		clock:   clock,
	}
}

// escrowAccount names the holding area for stakes on one outcome.
func escrowAccount(marketID uint64, outcomeID uint8) string {
	return fmt.Sprintf("escrow:%d:%d", marketID, outcomeID)
}

// InitializePlatformParams configures the one-time platform bootstrap.
type InitializePlatformParams struct {
	Treasury   string
	Oracle     string // empty → the admin caller
	AssetID    string // settlement asset, e.g. "USDC-6"
	FeePercent *uint8 // nil → DefaultFeePercent
}

// InitializePlatform creates the platform config. The caller becomes the
// fixed platform admin; there is no rotation operation.
func (e *Engine) InitializePlatform(ctx context.Context, caller string, p InitializePlatformParams) (*model.PlatformConfig, error) {
	if _, err := asset.Parse(p.AssetID); err != nil {
		return nil, err
	}

	fee := DefaultFeePercent
	if p.FeePercent != nil {
		fee = *p.FeePercent
	}
	if fee > 100 {
		return nil, ErrInvalidFeePercent
	}

	oracle := p.Oracle
	if oracle == "" {
		oracle = caller
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := &model.PlatformConfig{
		Admin:             caller,
		OracleAuthority:   oracle,
		Treasury:          p.Treasury,
		Asset:             p.AssetID,
		DefaultFeePercent: fee,
	}
	if err := e.store.CreatePlatform(ctx, cfg); err != nil {
		return nil, err
	}

	slog.Info("platform initialized",
		"admin", cfg.Admin,
		"oracle", cfg.OracleAuthority,
		"treasury", cfg.Treasury,
		"asset", cfg.Asset,
		"fee_percent", cfg.DefaultFeePercent,
	)
	return cfg, nil
}

// CreateMarketParams describes a new market.
type CreateMarketParams struct {
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	FeeOverride *uint8 // nil → platform default
}

// CreateMarket allocates a new market in Active state. Admin only. The
// market's oracle is a copy of the platform's current oracle authority;
// rotating the platform oracle later does not retouch existing markets.
func (e *Engine) CreateMarket(ctx context.Context, caller string, p CreateMarketParams) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorizedAdmin
	}
	if cfg.Paused {
		return nil, ErrPlatformPaused
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, ErrInvalidTimeRange
	}
	if !p.StartTime.After(e.clock()) {
		return nil, ErrInvalidStartTime
	}

	fee := cfg.DefaultFeePercent
	if p.FeeOverride != nil {
		fee = *p.FeeOverride
	}
	if fee > 100 {
		return nil, ErrInvalidFeePercent
	}

	market := &model.Market{
		ID:          cfg.MarketsCount,
		Name:        p.Name,
		Description: p.Description,
		Creator:     caller,
		Outcomes:    []uint8{},
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		FeePercent:  fee,
		Oracle:      cfg.OracleAuthority,
		Status:      model.StatusActive,
		CreatedAt:   e.clock(),
	}

	if err := e.store.CreateMarket(ctx, market); err != nil {
		return nil, err
	}

	next, err := settlement.Add(cfg.MarketsCount, 1)
	if err != nil {
		return nil, err
	}
	cfg.MarketsCount = next
	if err := e.store.UpdatePlatform(ctx, cfg); err != nil {
		return nil, err
	}

	slog.Info("market created",
		"id", market.ID,
		"name", market.Name,
		"fee_percent", market.FeePercent,
		"end_time", market.EndTime,
	)
	return market, nil
}

// RegisterOutcome adds an outcome to an active market with zero stake and a
// dedicated escrow holding area. Outcome IDs are caller-chosen; duplicates
// within a market are rejected.
func (e *Engine) RegisterOutcome(ctx context.Context, marketID uint64, outcomeID uint8, name string) (*model.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Status != model.StatusActive {
		return nil, ErrMarketNotActive
	}
	if market.HasOutcome(outcomeID) {
		return nil, ErrDuplicateOutcome
	}

	outcome := &model.Outcome{
		MarketID: marketID,
		ID:       outcomeID,
		Name:     name,
		Escrow:   escrowAccount(marketID, outcomeID),
		Odds:     decimal.NewFromInt(1), // reserved fixed 1:1 pricing
	}
	if err := e.store.CreateOutcome(ctx, outcome); err != nil {
		return nil, err
	}

	market.Outcomes = append(market.Outcomes, outcomeID)
	if err := e.store.UpdateMarket(ctx, market); err != nil {
		return nil, err
	}

	slog.Info("outcome registered",
		"market", marketID,
		"outcome", outcomeID,
		"name", name,
		"escrow", outcome.Escrow,
	)
	return outcome, nil
}

// PlaceBet stakes amount on one outcome. The user's tokens move into the
// outcome's escrow, and the position, outcome and market totals grow by
// exactly amount under checked addition. Bets at the fixed 1:1 ratio; the
// reserved odds field is never repriced.
func (e *Engine) PlaceBet(ctx context.Context, user string, marketID uint64, outcomeID uint8, amount uint64, assetID string) (*model.UserPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return nil, err
	}
	if assetID != cfg.Asset {
		return nil, ErrInvalidMint
	}

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Status != model.StatusActive {
		return nil, ErrMarketNotActive
	}
	if !e.clock().Before(market.EndTime) {
		return nil, ErrMarketAlreadyClosed
	}
	if amount == 0 {
		return nil, ErrInvalidBetAmount
	}

	outcome, err := e.store.GetOutcome(ctx, marketID, outcomeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}

	position, err := e.store.GetPosition(ctx, user, marketID, outcomeID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		position = &model.UserPosition{
			User:      user,
			MarketID:  marketID,
			OutcomeID: outcomeID,
		}
	}

	if e.limiter != nil {
		existing, err := e.userMarketStakes(ctx, user, marketID)
		if err != nil {
			return nil, err
		}
		if err := e.limiter.CheckLimit(outcomeID, amount, existing); err != nil {
			return nil, err
		}
	}

	// Compute every new total with checked arithmetic before moving funds so
	// an overflow aborts the whole bet with nothing transferred.
	newAmount, err := settlement.Add(position.Amount, amount)
	if err != nil {
		return nil, err
	}
	newShares, err := settlement.Add(position.Shares, amount) // 1:1 shares
	if err != nil {
		return nil, err
	}
	newStaked, err := settlement.Add(outcome.TotalStaked, amount)
	if err != nil {
		return nil, err
	}
	newPool, err := settlement.Add(market.TotalPool, amount)
	if err != nil {
		return nil, err
	}

	ref := "bet:" + uuid.New().String()
	if err := e.ledger.Transfer(ctx, user, outcome.Escrow, amount, cfg.Asset, ref); err != nil {
		return nil, fmt.Errorf("stake transfer: %w", err)
	}

	position.Amount = newAmount
	position.Shares = newShares
	position.Timestamp = e.clock()
	if err := e.store.SavePosition(ctx, position); err != nil {
		return nil, err
	}

	outcome.TotalStaked = newStaked
	if err := e.store.UpdateOutcome(ctx, outcome); err != nil {
		return nil, err
	}

	market.TotalPool = newPool
	if err := e.store.UpdateMarket(ctx, market); err != nil {
		return nil, err
	}

	slog.Info("bet placed",
		"user", user,
		"market", marketID,
		"outcome", outcomeID,
		"amount", amount,
		"position_amount", position.Amount,
		"total_pool", market.TotalPool,
		"transfer_ref", ref,
	)
	return position, nil
}

// userMarketStakes maps outcome ID → the user's current stake within one
// market, for the limiter.
func (e *Engine) userMarketStakes(ctx context.Context, user string, marketID uint64) (map[uint8]uint64, error) {
	positions, err := e.store.ListPositionsByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	stakes := make(map[uint8]uint64)
	for _, p := range positions {
		if p.MarketID == marketID {
			stakes[p.OutcomeID] = p.Amount
		}
	}
	return stakes, nil
}

// ResolveMarket records the winning outcome. Only the market's bound oracle
// may resolve, only after the end time, and only once.
func (e *Engine) ResolveMarket(ctx context.Context, caller string, marketID uint64, winningOutcomeID uint8) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if caller != market.Oracle {
		return nil, ErrUnauthorizedOracle
	}
	if market.Terminal() {
		return nil, ErrMarketAlreadyResolved
	}
	if e.clock().Before(market.EndTime) {
		return nil, ErrMarketNotEnded
	}
	if !market.HasOutcome(winningOutcomeID) {
		return nil, ErrOutcomeNotFound
	}

	// Consolidate escrows before committing the status: losing stakes move
	// into the winning outcome's escrow so it can honor every pro-rata claim,
	// and the platform fee moves to the treasury holding area for the later
	// admin sweep. All transfers carry deterministic references, so a partial
	// failure can be retried without double-moving funds.
	if err := e.settleEscrows(ctx, market, winningOutcomeID); err != nil {
		return nil, err
	}

	market.Status = model.StatusResolved
	winner := winningOutcomeID
	market.Winner = &winner
	if err := e.store.UpdateMarket(ctx, market); err != nil {
		return nil, err
	}

	slog.Info("market resolved",
		"market", marketID,
		"winner", winningOutcomeID,
		"total_pool", market.TotalPool,
	)
	return market, nil
}

// settleEscrows pools every outcome's escrowed stake into the winning
// outcome's escrow and routes the platform fee to the treasury. After this
// the winning escrow holds exactly the distributable pool.
func (e *Engine) settleEscrows(ctx context.Context, market *model.Market, winningOutcomeID uint8) error {
	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return err
	}

	winningEscrow := escrowAccount(market.ID, winningOutcomeID)
	for _, id := range market.Outcomes {
		if id == winningOutcomeID {
			continue
		}
		from := escrowAccount(market.ID, id)
		balance, err := e.ledger.Balance(ctx, from, cfg.Asset)
		if err != nil {
			return err
		}
		if balance == 0 {
			continue
		}
		ref := fmt.Sprintf("settle:%d:%d", market.ID, id)
		if err := e.ledger.Transfer(ctx, from, winningEscrow, balance, cfg.Asset, ref); err != nil {
			return fmt.Errorf("escrow consolidation: %w", err)
		}
	}

	fee, err := settlement.Fee(market.TotalPool, market.FeePercent)
	if err != nil {
		return err
	}
	if fee > 0 {
		ref := fmt.Sprintf("fee:%d", market.ID)
		if err := e.ledger.Transfer(ctx, winningEscrow, cfg.Treasury, fee, cfg.Asset, ref); err != nil {
			return fmt.Errorf("fee transfer: %w", err)
		}
	}
	return nil
}

// CancelMarket moves a non-terminal market to Cancelled. Admin only. Staked
// funds remain in the outcome escrows: no refund operation is defined, so
// cancellation strands stakes until a recovery path exists.
func (e *Engine) CancelMarket(ctx context.Context, caller string, marketID uint64) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorizedAdmin
	}

	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Terminal() {
		return nil, ErrMarketAlreadyResolved
	}

	market.Status = model.StatusCancelled
	if err := e.store.UpdateMarket(ctx, market); err != nil {
		return nil, err
	}

	slog.Warn("market cancelled, escrowed stakes are stranded",
		"market", marketID,
		"total_pool", market.TotalPool,
	)
	return market, nil
}

// WithdrawFees sweeps the treasury holding-area balance to the admin account.
// Admin only; a zero balance is rejected.
func (e *Engine) WithdrawFees(ctx context.Context, caller string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.GetPlatform(ctx)
	if err != nil {
		return 0, err
	}
	if caller != cfg.Admin {
		return 0, ErrUnauthorizedAdmin
	}

	balance, err := e.ledger.Balance(ctx, cfg.Treasury, cfg.Asset)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, settlement.ErrInsufficientLiquidity
	}

	ref := "fees:" + uuid.New().String()
	if err := e.ledger.Transfer(ctx, cfg.Treasury, cfg.Admin, balance, cfg.Asset, ref); err != nil {
		return 0, fmt.Errorf("fee sweep: %w", err)
	}

	slog.Info("fees withdrawn", "amount", balance, "admin", cfg.Admin, "transfer_ref", ref)
	return balance, nil
}

// --- Read paths (no serialization needed) ---

// Platform returns the platform config.
func (e *Engine) Platform(ctx context.Context) (*model.PlatformConfig, error) {
	return e.store.GetPlatform(ctx)
}

// Market returns one market.
func (e *Engine) Market(ctx context.Context, id uint64) (*model.Market, error) {
	return e.store.GetMarket(ctx, id)
}

// Markets returns all markets, newest first.
func (e *Engine) Markets(ctx context.Context) ([]model.Market, error) {
	return e.store.ListMarkets(ctx)
}

// Outcomes returns a market's outcomes in registration order.
func (e *Engine) Outcomes(ctx context.Context, marketID uint64) ([]model.Outcome, error) {
	return e.store.ListOutcomes(ctx, marketID)
}

// UserPositions returns all positions held by a user.
func (e *Engine) UserPositions(ctx context.Context, user string) ([]model.UserPosition, error) {
	return e.store.ListPositionsByUser(ctx, user)
}
