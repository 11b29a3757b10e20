package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oddspool/settlement-engine/internal/engine"
	"github.com/oddspool/settlement-engine/internal/ledger"
	"github.com/oddspool/settlement-engine/internal/limits"
	"github.com/oddspool/settlement-engine/internal/model"
	"github.com/oddspool/settlement-engine/internal/settlement"
	"github.com/oddspool/settlement-engine/internal/store"
)

const testAsset = "USDC-6"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// testEnv bundles the engine with its collaborators for direct inspection.
type testEnv struct {
	engine *engine.Engine
	store  *store.MemoryStore
	ledger *ledger.MemoryLedger
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ms := store.NewMemoryStore()
	ml := ledger.NewMemoryLedger()
	return &testEnv{
		engine: engine.New(ms, ml, nil, clk.Now),
		store:  ms,
		ledger: ml,
		clock:  clk,
	}
}

func (env *testEnv) initPlatform(t *testing.T, feePercent uint8) {
	t.Helper()
	_, err := env.engine.InitializePlatform(context.Background(), "admin", engine.InitializePlatformParams{
		Treasury:   "treasury",
		Oracle:     "oracle",
		AssetID:    testAsset,
		FeePercent: &feePercent,
	})
	if err != nil {
		t.Fatalf("initialize platform: %v", err)
	}
}

// newMarket creates a market opening in 1h and closing in 2h, with two
// outcomes registered.
func (env *testEnv) newMarket(t *testing.T) *model.Market {
	t.Helper()
	m, err := env.engine.CreateMarket(context.Background(), "admin", engine.CreateMarketParams{
		Name:        "TSM vs Cloud9",
		Description: "grand final",
		StartTime:   env.clock.now.Add(time.Hour),
		EndTime:     env.clock.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	for id, name := range map[uint8]string{1: "TSM wins", 2: "Cloud9 wins"} {
		if _, err := env.engine.RegisterOutcome(context.Background(), m.ID, id, name); err != nil {
			t.Fatalf("register outcome %d: %v", id, err)
		}
	}
	return m
}

func (env *testEnv) fund(user string, amount uint64) {
	env.ledger.Mint(user, testAsset, amount)
}

func (env *testEnv) bet(t *testing.T, user string, marketID uint64, outcomeID uint8, amount uint64) {
	t.Helper()
	if _, err := env.engine.PlaceBet(context.Background(), user, marketID, outcomeID, amount, testAsset); err != nil {
		t.Fatalf("place bet %s/%d/%d/%d: %v", user, marketID, outcomeID, amount, err)
	}
}

func (env *testEnv) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := env.ledger.Balance(context.Background(), account, testAsset)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

// --- Platform initialization ---

func TestInitializePlatform_Defaults(t *testing.T) {
	env := newTestEnv(t)

	cfg, err := env.engine.InitializePlatform(context.Background(), "admin", engine.InitializePlatformParams{
		Treasury: "treasury",
		AssetID:  testAsset,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if cfg.OracleAuthority != "admin" {
		t.Errorf("oracle defaults to admin, got %s", cfg.OracleAuthority)
	}
	if cfg.DefaultFeePercent != engine.DefaultFeePercent {
		t.Errorf("fee = %d, want %d", cfg.DefaultFeePercent, engine.DefaultFeePercent)
	}
	if cfg.MarketsCount != 0 || cfg.Paused {
		t.Errorf("fresh platform should have zero markets and be unpaused")
	}
}

func TestInitializePlatform_Twice(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)

	_, err := env.engine.InitializePlatform(context.Background(), "other", engine.InitializePlatformParams{
		Treasury: "t2", AssetID: testAsset,
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInitializePlatform_BadAsset(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.InitializePlatform(context.Background(), "admin", engine.InitializePlatformParams{
		Treasury: "treasury", AssetID: "not-an-asset",
	})
	if err == nil {
		t.Error("expected error for malformed asset identifier")
	}
}

// --- Market creation ---

func TestCreateMarket_SequentialIDs(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)

	m1 := env.newMarket(t)
	m2 := env.newMarket(t)

	if m1.ID != 0 || m2.ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", m1.ID, m2.ID)
	}
	if m1.Status != model.StatusActive {
		t.Errorf("status = %s, want active", m1.Status)
	}
	if m1.Oracle != "oracle" {
		t.Errorf("oracle = %s, want platform oracle authority", m1.Oracle)
	}
	if m1.FeePercent != 2 {
		t.Errorf("fee = %d, want platform default 2", m1.FeePercent)
	}
}

func TestCreateMarket_FeeOverride(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)

	override := uint8(5)
	m, err := env.engine.CreateMarket(context.Background(), "admin", engine.CreateMarketParams{
		Name:        "x",
		StartTime:   env.clock.now.Add(time.Hour),
		EndTime:     env.clock.now.Add(2 * time.Hour),
		FeeOverride: &override,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.FeePercent != 5 {
		t.Errorf("fee = %d, want override 5", m.FeePercent)
	}
}

func TestCreateMarket_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	now := env.clock.now

	badFee := uint8(101)
	tests := []struct {
		name    string
		caller  string
		params  engine.CreateMarketParams
		pause   bool
		wantErr error
	}{
		{
			name:   "non-admin",
			caller: "mallory",
			params: engine.CreateMarketParams{
				StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
			},
			wantErr: engine.ErrUnauthorizedAdmin,
		},
		{
			name:   "end before start",
			caller: "admin",
			params: engine.CreateMarketParams{
				StartTime: now.Add(2 * time.Hour), EndTime: now.Add(time.Hour),
			},
			wantErr: engine.ErrInvalidTimeRange,
		},
		{
			name:   "start in the past",
			caller: "admin",
			params: engine.CreateMarketParams{
				StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
			},
			wantErr: engine.ErrInvalidStartTime,
		},
		{
			name:   "fee override out of range",
			caller: "admin",
			params: engine.CreateMarketParams{
				StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
				FeeOverride: &badFee,
			},
			wantErr: engine.ErrInvalidFeePercent,
		},
		{
			name:   "platform paused",
			caller: "admin",
			params: engine.CreateMarketParams{
				StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
			},
			pause:   true,
			wantErr: engine.ErrPlatformPaused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.pause {
				cfg, _ := env.store.GetPlatform(context.Background())
				cfg.Paused = true
				env.store.UpdatePlatform(context.Background(), cfg)
				defer func() {
					cfg.Paused = false
					env.store.UpdatePlatform(context.Background(), cfg)
				}()
			}

			_, err := env.engine.CreateMarket(context.Background(), tt.caller, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// --- Outcome registration ---

func TestRegisterOutcome_DuplicateID(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)

	_, err := env.engine.RegisterOutcome(context.Background(), m.ID, 1, "again")
	if !errors.Is(err, engine.ErrDuplicateOutcome) {
		t.Errorf("expected ErrDuplicateOutcome, got %v", err)
	}
}

func TestRegisterOutcome_RegistrationOrder(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m, err := env.engine.CreateMarket(context.Background(), "admin", engine.CreateMarketParams{
		Name:      "x",
		StartTime: env.clock.now.Add(time.Hour),
		EndTime:   env.clock.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, id := range []uint8{7, 3, 5} {
		if _, err := env.engine.RegisterOutcome(context.Background(), m.ID, id, "o"); err != nil {
			t.Fatalf("register %d: %v", id, err)
		}
	}

	got, err := env.engine.Market(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	want := []uint8{7, 3, 5}
	if len(got.Outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", got.Outcomes, want)
	}
	for i := range want {
		if got.Outcomes[i] != want[i] {
			t.Errorf("outcomes[%d] = %d, want %d (insertion order)", i, got.Outcomes[i], want[i])
		}
	}
}

func TestRegisterOutcome_MarketNotActive(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)

	if _, err := env.engine.CancelMarket(context.Background(), "admin", m.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := env.engine.RegisterOutcome(context.Background(), m.ID, 9, "late")
	if !errors.Is(err, engine.ErrMarketNotActive) {
		t.Errorf("expected ErrMarketNotActive, got %v", err)
	}
}

// --- Betting ---

func TestPlaceBet_MovesStakeAndGrowsPools(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 1000)

	env.bet(t, "alice", m.ID, 1, 400)

	if got := env.balance(t, "alice"); got != 600 {
		t.Errorf("alice balance = %d, want 600", got)
	}

	market, _ := env.engine.Market(context.Background(), m.ID)
	if market.TotalPool != 400 {
		t.Errorf("total pool = %d, want 400", market.TotalPool)
	}

	outcomes, _ := env.engine.Outcomes(context.Background(), m.ID)
	for _, o := range outcomes {
		if o.ID == 1 && o.TotalStaked != 400 {
			t.Errorf("outcome 1 staked = %d, want 400", o.TotalStaked)
		}
		if o.ID == 2 && o.TotalStaked != 0 {
			t.Errorf("outcome 2 staked = %d, want 0", o.TotalStaked)
		}
	}
}

func TestPlaceBet_MergesIntoOnePosition(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 1000)

	env.bet(t, "alice", m.ID, 1, 100)
	env.bet(t, "alice", m.ID, 1, 250)

	positions, err := env.engine.UserPositions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 merged position, got %d", len(positions))
	}
	p := positions[0]
	if p.Amount != 350 {
		t.Errorf("amount = %d, want 350", p.Amount)
	}
	if p.Shares != 350 {
		t.Errorf("shares = %d, want 350 (1:1 with amount)", p.Shares)
	}
	if p.Claimed {
		t.Error("fresh position must not be claimed")
	}
}

func TestPlaceBet_MonotonicPool(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 10000)

	var lastPool uint64
	for _, amount := range []uint64{10, 1, 500, 42} {
		env.bet(t, "alice", m.ID, 2, amount)
		market, _ := env.engine.Market(context.Background(), m.ID)
		if market.TotalPool != lastPool+amount {
			t.Fatalf("pool = %d, want %d (grew by exactly the bet)", market.TotalPool, lastPool+amount)
		}
		lastPool = market.TotalPool
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 1000)

	tests := []struct {
		name    string
		setup   func()
		outcome uint8
		amount  uint64
		asset   string
		wantErr error
	}{
		{
			name:    "zero amount",
			outcome: 1, amount: 0, asset: testAsset,
			wantErr: engine.ErrInvalidBetAmount,
		},
		{
			name:    "wrong asset",
			outcome: 1, amount: 10, asset: "DOGE-8",
			wantErr: engine.ErrInvalidMint,
		},
		{
			name:    "unknown outcome",
			outcome: 99, amount: 10, asset: testAsset,
			wantErr: engine.ErrOutcomeNotFound,
		},
		{
			name:    "betting window closed",
			setup:   func() { env.clock.now = env.clock.now.Add(3 * time.Hour) },
			outcome: 1, amount: 10, asset: testAsset,
			wantErr: engine.ErrMarketAlreadyClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}

			before, _ := env.engine.Market(context.Background(), m.ID)
			_, err := env.engine.PlaceBet(context.Background(), "alice", m.ID, tt.outcome, tt.amount, tt.asset)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}

			after, _ := env.engine.Market(context.Background(), m.ID)
			if after.TotalPool != before.TotalPool {
				t.Errorf("rejected bet mutated pool: %d → %d", before.TotalPool, after.TotalPool)
			}
			if got := env.balance(t, "alice"); got != 1000 {
				t.Errorf("rejected bet moved funds: alice = %d, want 1000", got)
			}
		})
	}
}

func TestPlaceBet_InsufficientFundsAbortsWhole(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 5)

	_, err := env.engine.PlaceBet(context.Background(), "alice", m.ID, 1, 10, testAsset)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	market, _ := env.engine.Market(context.Background(), m.ID)
	if market.TotalPool != 0 {
		t.Errorf("failed transfer must not grow the pool, got %d", market.TotalPool)
	}
	if _, err := env.engine.UserPositions(context.Background(), "alice"); err != nil {
		t.Fatalf("positions: %v", err)
	}
}

func TestPlaceBet_StakeLimits(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ms := store.NewMemoryStore()
	ml := ledger.NewMemoryLedger()
	limiter := limits.NewStakeLimiter(100, 150)
	env := &testEnv{
		engine: engine.New(ms, ml, limiter, clk.Now),
		store:  ms, ledger: ml, clock: clk,
	}
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 10000)

	env.bet(t, "alice", m.ID, 1, 100) // at the per-position cap

	if _, err := env.engine.PlaceBet(context.Background(), "alice", m.ID, 1, 1, testAsset); !errors.Is(err, limits.ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}

	env.bet(t, "alice", m.ID, 2, 50) // market aggregate now 150

	if _, err := env.engine.PlaceBet(context.Background(), "alice", m.ID, 2, 1, testAsset); !errors.Is(err, limits.ErrMarketLimitExceeded) {
		t.Errorf("expected ErrMarketLimitExceeded, got %v", err)
	}
}

// --- Resolution ---

func TestResolveMarket_Success(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 1000)
	env.bet(t, "alice", m.ID, 1, 100)

	env.clock.now = env.clock.now.Add(3 * time.Hour)

	resolved, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != model.StatusResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}
	if resolved.Winner == nil || *resolved.Winner != 1 {
		t.Errorf("winner = %v, want 1", resolved.Winner)
	}
}

func TestResolveMarket_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)

	t.Run("before end time", func(t *testing.T) {
		_, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 1)
		if !errors.Is(err, engine.ErrMarketNotEnded) {
			t.Errorf("expected ErrMarketNotEnded, got %v", err)
		}
	})

	env.clock.now = env.clock.now.Add(3 * time.Hour)

	t.Run("wrong oracle mutates nothing", func(t *testing.T) {
		_, err := env.engine.ResolveMarket(context.Background(), "mallory", m.ID, 1)
		if !errors.Is(err, engine.ErrUnauthorizedOracle) {
			t.Errorf("expected ErrUnauthorizedOracle, got %v", err)
		}
		market, _ := env.engine.Market(context.Background(), m.ID)
		if market.Status != model.StatusActive || market.Winner != nil {
			t.Errorf("failed resolve mutated market: status=%s winner=%v", market.Status, market.Winner)
		}
	})

	t.Run("unknown winning outcome", func(t *testing.T) {
		_, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 42)
		if !errors.Is(err, engine.ErrOutcomeNotFound) {
			t.Errorf("expected ErrOutcomeNotFound, got %v", err)
		}
	})

	t.Run("double resolve", func(t *testing.T) {
		if _, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 1); err != nil {
			t.Fatalf("first resolve: %v", err)
		}
		_, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 2)
		if !errors.Is(err, engine.ErrMarketAlreadyResolved) {
			t.Errorf("expected ErrMarketAlreadyResolved, got %v", err)
		}
		market, _ := env.engine.Market(context.Background(), m.ID)
		if *market.Winner != 1 {
			t.Errorf("winner changed after failed re-resolve: %d", *market.Winner)
		}
	})
}

// --- Cancellation ---

func TestCancelMarket(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)

	if _, err := env.engine.CancelMarket(context.Background(), "mallory", m.ID); !errors.Is(err, engine.ErrUnauthorizedAdmin) {
		t.Errorf("expected ErrUnauthorizedAdmin, got %v", err)
	}

	cancelled, err := env.engine.CancelMarket(context.Background(), "admin", m.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	if _, err := env.engine.CancelMarket(context.Background(), "admin", m.ID); !errors.Is(err, engine.ErrMarketAlreadyResolved) {
		t.Errorf("cancel of terminal market: expected ErrMarketAlreadyResolved, got %v", err)
	}
}

// --- Claims ---

// settleScenario builds the canonical worked example: 2% fee, pool 1000,
// winning outcome 1 staked 400 (alice 100, bob 300), outcome 2 staked 600.
func settleScenario(t *testing.T) (*testEnv, *model.Market) {
	t.Helper()
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 100)
	env.fund("bob", 300)
	env.fund("carol", 600)
	env.bet(t, "alice", m.ID, 1, 100)
	env.bet(t, "bob", m.ID, 1, 300)
	env.bet(t, "carol", m.ID, 2, 600)

	env.clock.now = env.clock.now.Add(3 * time.Hour)
	if _, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return env, m
}

func TestClaimPayout_WorkedExample(t *testing.T) {
	env, m := settleScenario(t)

	// fee = 20, distributable = 980, alice payout = floor(100*980/400) = 245.
	payout, err := env.engine.ClaimPayout(context.Background(), "alice", m.ID, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payout != 245 {
		t.Errorf("payout = %d, want 245", payout)
	}
	if got := env.balance(t, "alice"); got != 245 {
		t.Errorf("alice balance = %d, want 245", got)
	}
}

func TestClaimPayout_IdempotentGuard(t *testing.T) {
	env, m := settleScenario(t)

	if _, err := env.engine.ClaimPayout(context.Background(), "alice", m.ID, 1); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := env.engine.ClaimPayout(context.Background(), "alice", m.ID, 1)
	if !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Errorf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}
	if got := env.balance(t, "alice"); got != 245 {
		t.Errorf("second claim transferred again: alice = %d, want 245", got)
	}
}

func TestClaimPayout_Conservation(t *testing.T) {
	env, m := settleScenario(t)

	alicePayout, err := env.engine.ClaimPayout(context.Background(), "alice", m.ID, 1)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	bobPayout, err := env.engine.ClaimPayout(context.Background(), "bob", m.ID, 1)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}

	fee, _ := settlement.Fee(1000, 2)
	if alicePayout+bobPayout+fee > 1000 {
		t.Fatalf("conservation violated: %d + %d + %d > 1000", alicePayout, bobPayout, fee)
	}
	// 245 + 735 + 20 = 1000 exactly: no rounding remainder here.
	if alicePayout+bobPayout+fee != 1000 {
		t.Errorf("full claim should distribute the whole pool: %d + %d + %d", alicePayout, bobPayout, fee)
	}
	if got := env.balance(t, "treasury"); got != fee {
		t.Errorf("treasury = %d, want fee %d", got, fee)
	}
}

func TestClaimPayout_Rejections(t *testing.T) {
	env, m := settleScenario(t)

	t.Run("losing outcome", func(t *testing.T) {
		_, err := env.engine.ClaimPayout(context.Background(), "carol", m.ID, 2)
		if !errors.Is(err, engine.ErrNotWinner) {
			t.Errorf("expected ErrNotWinner, got %v", err)
		}
	})

	t.Run("no position on winning outcome", func(t *testing.T) {
		_, err := env.engine.ClaimPayout(context.Background(), "carol", m.ID, 1)
		if !errors.Is(err, engine.ErrNotWinner) {
			t.Errorf("expected ErrNotWinner, got %v", err)
		}
	})
}

func TestClaimPayout_MarketNotResolved(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("alice", 100)
	env.bet(t, "alice", m.ID, 1, 100)

	_, err := env.engine.ClaimPayout(context.Background(), "alice", m.ID, 1)
	if !errors.Is(err, engine.ErrMarketNotResolved) {
		t.Errorf("expected ErrMarketNotResolved, got %v", err)
	}
}

func TestClaimPayout_ZeroStakedWinner(t *testing.T) {
	env := newTestEnv(t)
	env.initPlatform(t, 2)
	m := env.newMarket(t)
	env.fund("carol", 600)
	env.bet(t, "carol", m.ID, 2, 600)

	// Outcome 1 wins with zero stake on it — representable but unusual.
	env.clock.now = env.clock.now.Add(3 * time.Hour)
	if _, err := env.engine.ResolveMarket(context.Background(), "oracle", m.ID, 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Carol holds a position, but only on the losing outcome; a forged claim
	// against the winner trips the no-position guard first. Seed a position
	// directly to exercise the division-by-zero guard itself.
	env.store.SavePosition(context.Background(), &model.UserPosition{
		User: "dave", MarketID: m.ID, OutcomeID: 1, Amount: 0, Shares: 0,
	})
	_, err := env.engine.ClaimPayout(context.Background(), "dave", m.ID, 1)
	if !errors.Is(err, settlement.ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

// --- Fee withdrawal ---

func TestWithdrawFees(t *testing.T) {
	env, m := settleScenario(t)
	_ = m

	t.Run("non-admin", func(t *testing.T) {
		_, err := env.engine.WithdrawFees(context.Background(), "mallory")
		if !errors.Is(err, engine.ErrUnauthorizedAdmin) {
			t.Errorf("expected ErrUnauthorizedAdmin, got %v", err)
		}
	})

	t.Run("sweeps treasury", func(t *testing.T) {
		amount, err := env.engine.WithdrawFees(context.Background(), "admin")
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if amount != 20 {
			t.Errorf("swept = %d, want 20 (2%% of 1000)", amount)
		}
		if got := env.balance(t, "admin"); got != 20 {
			t.Errorf("admin balance = %d, want 20", got)
		}
	})

	t.Run("empty treasury", func(t *testing.T) {
		_, err := env.engine.WithdrawFees(context.Background(), "admin")
		if !errors.Is(err, settlement.ErrInsufficientLiquidity) {
			t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
		}
	})
}
