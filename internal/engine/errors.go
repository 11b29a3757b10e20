package engine

import "errors"

// Typed rejections for every operation precondition. All failures are
// synchronous whole-operation aborts; no partial mutation is ever persisted.
var (
	// Authorization.
	ErrUnauthorizedAdmin  = errors.New("engine: caller is not the platform admin")
	ErrUnauthorizedOracle = errors.New("engine: caller is not the market's oracle")
	ErrNotPositionOwner   = errors.New("engine: caller does not own this position")
	ErrNotWinner          = errors.New("engine: position is not on the winning outcome")

	// State machine.
	ErrMarketNotActive      = errors.New("engine: market is not active")
	ErrMarketAlreadyClosed  = errors.New("engine: betting window has closed")
	ErrMarketAlreadyResolved = errors.New("engine: market is already resolved or cancelled")
	ErrMarketNotResolved    = errors.New("engine: market is not resolved")
	ErrMarketNotEnded       = errors.New("engine: market has not reached its end time")

	// Input validation.
	ErrInvalidTimeRange  = errors.New("engine: end time must be after start time")
	ErrInvalidStartTime  = errors.New("engine: start time must be in the future")
	ErrInvalidBetAmount  = errors.New("engine: bet amount must be positive")
	ErrInvalidMint       = errors.New("engine: asset does not match the platform settlement asset")
	ErrInvalidFeePercent = errors.New("engine: fee percentage must be 0-100")
	ErrOutcomeNotFound   = errors.New("engine: outcome not found in market")
	ErrDuplicateOutcome  = errors.New("engine: outcome id already registered in market")

	// Resource.
	ErrAlreadyClaimed = errors.New("engine: position already claimed")

	// Policy.
	ErrPlatformPaused = errors.New("engine: platform is paused")
)
