package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oddspool/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// uint64 token amounts are stored as NUMERIC (BIGINT cannot hold the full
// range) and scanned through TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func parseU64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// --- Platform ---

func (s *PostgresStore) CreatePlatform(ctx context.Context, p *model.PlatformConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO platform_config (singleton, admin, oracle_authority, treasury, asset, default_fee_percent, markets_count, total_volume, paused)
		 VALUES (TRUE, $1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		p.Admin, p.OracleAuthority, p.Treasury, p.Asset,
		int16(p.DefaultFeePercent), u64(p.MarketsCount), u64(p.TotalVolume), p.Paused,
	)
	return err
}

func (s *PostgresStore) GetPlatform(ctx context.Context) (*model.PlatformConfig, error) {
	var p model.PlatformConfig
	var fee int16
	var marketsCount, totalVolume string

	err := s.pool.QueryRow(ctx,
		`SELECT admin, oracle_authority, treasury, asset, default_fee_percent,
		        markets_count::TEXT, total_volume::TEXT, paused
		 FROM platform_config WHERE singleton`).
		Scan(&p.Admin, &p.OracleAuthority, &p.Treasury, &p.Asset, &fee,
			&marketsCount, &totalVolume, &p.Paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: platform not initialized", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get platform: %w", err)
	}

	p.DefaultFeePercent = uint8(fee)
	p.MarketsCount = parseU64(marketsCount)
	p.TotalVolume = parseU64(totalVolume)
	return &p, nil
}

func (s *PostgresStore) UpdatePlatform(ctx context.Context, p *model.PlatformConfig) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_config
		 SET admin = $1, oracle_authority = $2, treasury = $3, asset = $4,
		     default_fee_percent = $5, markets_count = $6::NUMERIC,
		     total_volume = $7::NUMERIC, paused = $8
		 WHERE singleton`,
		p.Admin, p.OracleAuthority, p.Treasury, p.Asset,
		int16(p.DefaultFeePercent), u64(p.MarketsCount), u64(p.TotalVolume), p.Paused,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: platform not initialized", ErrNotFound)
	}
	return nil
}

// --- Markets ---

const marketColumns = `id::TEXT, name, description, creator, outcomes, total_pool::TEXT,
       winner, start_time, end_time, fee_percent, oracle, status, created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, description, creator, outcomes, total_pool, winner, start_time, end_time, fee_percent, oracle, status, created_at)
		 VALUES ($1::NUMERIC, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12, $13)`,
		u64(m.ID), m.Name, m.Description, m.Creator, outcomesToInt16(m.Outcomes),
		u64(m.TotalPool), winnerToInt16(m.Winner),
		m.StartTime, m.EndTime, int16(m.FeePercent), m.Oracle, m.Status, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1::NUMERIC`, u64(id))
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET outcomes = $2, total_pool = $3::NUMERIC, winner = $4, status = $5
		 WHERE id = $1::NUMERIC`,
		u64(m.ID), outcomesToInt16(m.Outcomes), u64(m.TotalPool),
		winnerToInt16(m.Winner), m.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %d", ErrNotFound, m.ID)
	}
	return nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var id, totalPool string
	var outcomes []int16
	var winner *int16
	var fee int16

	if err := row.Scan(&id, &m.Name, &m.Description, &m.Creator, &outcomes, &totalPool,
		&winner, &m.StartTime, &m.EndTime, &fee, &m.Oracle, &m.Status, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.ID = parseU64(id)
	m.TotalPool = parseU64(totalPool)
	m.FeePercent = uint8(fee)
	m.Outcomes = int16ToOutcomes(outcomes)
	if winner != nil {
		w := uint8(*winner)
		m.Winner = &w
	}
	return &m, nil
}

// --- Outcomes ---

func (s *PostgresStore) CreateOutcome(ctx context.Context, o *model.Outcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes (market_id, id, name, escrow, total_staked, odds)
		 VALUES ($1::NUMERIC, $2, $3, $4, $5::NUMERIC, $6::NUMERIC)`,
		u64(o.MarketID), int16(o.ID), o.Name, o.Escrow, u64(o.TotalStaked), o.Odds.String(),
	)
	return err
}

func (s *PostgresStore) GetOutcome(ctx context.Context, marketID uint64, id uint8) (*model.Outcome, error) {
	var o model.Outcome
	var mid, totalStaked, odds string
	var oid int16

	err := s.pool.QueryRow(ctx,
		`SELECT market_id::TEXT, id, name, escrow, total_staked::TEXT, odds::TEXT
		 FROM outcomes WHERE market_id = $1::NUMERIC AND id = $2`,
		u64(marketID), int16(id)).
		Scan(&mid, &oid, &o.Name, &o.Escrow, &totalStaked, &odds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: outcome %d in market %d", ErrNotFound, id, marketID)
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome %d/%d: %w", marketID, id, err)
	}

	o.MarketID = parseU64(mid)
	o.ID = uint8(oid)
	o.TotalStaked = parseU64(totalStaked)
	o.Odds, _ = decimal.NewFromString(odds)
	return &o, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, marketID uint64) ([]model.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id::TEXT, id, name, escrow, total_staked::TEXT, odds::TEXT
		 FROM outcomes WHERE market_id = $1::NUMERIC ORDER BY registered_at`,
		u64(marketID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var mid, totalStaked, odds string
		var oid int16
		if err := rows.Scan(&mid, &oid, &o.Name, &o.Escrow, &totalStaked, &odds); err != nil {
			return nil, err
		}
		o.MarketID = parseU64(mid)
		o.ID = uint8(oid)
		o.TotalStaked = parseU64(totalStaked)
		o.Odds, _ = decimal.NewFromString(odds)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) UpdateOutcome(ctx context.Context, o *model.Outcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outcomes SET total_staked = $3::NUMERIC, odds = $4::NUMERIC
		 WHERE market_id = $1::NUMERIC AND id = $2`,
		u64(o.MarketID), int16(o.ID), u64(o.TotalStaked), o.Odds.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: outcome %d in market %d", ErrNotFound, o.ID, o.MarketID)
	}
	return nil
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, user string, marketID uint64, outcomeID uint8) (*model.UserPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, market_id::TEXT, outcome_id, amount::TEXT, shares::TEXT, timestamp, claimed
		 FROM positions WHERE user_id = $1 AND market_id = $2::NUMERIC AND outcome_id = $3`,
		user, u64(marketID), int16(outcomeID))
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %s/%d/%d", ErrNotFound, user, marketID, outcomeID)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%d/%d: %w", user, marketID, outcomeID, err)
	}
	return p, nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *model.UserPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (user_id, market_id, outcome_id, amount, shares, timestamp, claimed)
		 VALUES ($1, $2::NUMERIC, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)
		 ON CONFLICT (user_id, market_id, outcome_id)
		 DO UPDATE SET amount = EXCLUDED.amount, shares = EXCLUDED.shares,
		               timestamp = EXCLUDED.timestamp, claimed = EXCLUDED.claimed`,
		p.User, u64(p.MarketID), int16(p.OutcomeID),
		u64(p.Amount), u64(p.Shares), p.Timestamp, p.Claimed,
	)
	return err
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, user string) ([]model.UserPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, market_id::TEXT, outcome_id, amount::TEXT, shares::TEXT, timestamp, claimed
		 FROM positions WHERE user_id = $1 ORDER BY market_id, outcome_id`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsByMarket(ctx context.Context, marketID uint64) ([]model.UserPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, market_id::TEXT, outcome_id, amount::TEXT, shares::TEXT, timestamp, claimed
		 FROM positions WHERE market_id = $1::NUMERIC ORDER BY user_id, outcome_id`, u64(marketID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPosition(row pgxRow) (*model.UserPosition, error) {
	var p model.UserPosition
	var marketID, amount, shares string
	var outcomeID int16

	if err := row.Scan(&p.User, &marketID, &outcomeID, &amount, &shares, &p.Timestamp, &p.Claimed); err != nil {
		return nil, err
	}

	p.MarketID = parseU64(marketID)
	p.OutcomeID = uint8(outcomeID)
	p.Amount = parseU64(amount)
	p.Shares = parseU64(shares)
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]model.UserPosition, error) {
	var positions []model.UserPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// --- Array helpers ---

func outcomesToInt16(ids []uint8) []int16 {
	out := make([]int16, len(ids))
	for i, id := range ids {
		out[i] = int16(id)
	}
	return out
}

func int16ToOutcomes(ids []int16) []uint8 {
	out := make([]uint8, len(ids))
	for i, id := range ids {
		out[i] = uint8(id)
	}
	return out
}

func winnerToInt16(w *uint8) *int16 {
	if w == nil {
		return nil
	}
	v := int16(*w)
	return &v
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)
