package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddspool/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// The platform config is deliberately not cached: it carries the market ID
// counter and the pause flag, both of which must always reflect the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Platform (passthrough, never cached) ---

func (s *CachedStore) CreatePlatform(ctx context.Context, p *model.PlatformConfig) error {
	return s.primary.CreatePlatform(ctx, p)
}

func (s *CachedStore) GetPlatform(ctx context.Context) (*model.PlatformConfig, error) {
	return s.primary.GetPlatform(ctx)
}

func (s *CachedStore) UpdatePlatform(ctx context.Context, p *model.PlatformConfig) error {
	return s.primary.UpdatePlatform(ctx, p)
}

// --- Markets (write-through, invalidate on update) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.UpdateMarket(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, marketKey(m.ID))
	return nil
}

// --- Outcomes (write-through, invalidate on update) ---

func (s *CachedStore) CreateOutcome(ctx context.Context, o *model.Outcome) error {
	if err := s.primary.CreateOutcome(ctx, o); err != nil {
		return err
	}
	s.cacheOutcome(ctx, o)
	return nil
}

func (s *CachedStore) GetOutcome(ctx context.Context, marketID uint64, id uint8) (*model.Outcome, error) {
	data, err := s.rdb.Get(ctx, redisOutcomeKey(marketID, id)).Bytes()
	if err == nil {
		var o model.Outcome
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	o, err := s.primary.GetOutcome(ctx, marketID, id)
	if err != nil {
		return nil, err
	}

	s.cacheOutcome(ctx, o)
	return o, nil
}

func (s *CachedStore) ListOutcomes(ctx context.Context, marketID uint64) ([]model.Outcome, error) {
	return s.primary.ListOutcomes(ctx, marketID)
}

func (s *CachedStore) UpdateOutcome(ctx context.Context, o *model.Outcome) error {
	if err := s.primary.UpdateOutcome(ctx, o); err != nil {
		return err
	}
	s.rdb.Del(ctx, redisOutcomeKey(o.MarketID, o.ID))
	return nil
}

// --- Positions (invalidate per user on write) ---

func (s *CachedStore) GetPosition(ctx context.Context, user string, marketID uint64, outcomeID uint8) (*model.UserPosition, error) {
	return s.primary.GetPosition(ctx, user, marketID, outcomeID)
}

func (s *CachedStore) SavePosition(ctx context.Context, p *model.UserPosition) error {
	if err := s.primary.SavePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, userPositionsKey(p.User))
	return nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, user string) ([]model.UserPosition, error) {
	data, err := s.rdb.Get(ctx, userPositionsKey(user)).Bytes()
	if err == nil {
		var positions []model.UserPosition
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, user)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, userPositionsKey(user), data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) ListPositionsByMarket(ctx context.Context, marketID uint64) ([]model.UserPosition, error) {
	return s.primary.ListPositionsByMarket(ctx, marketID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheOutcome(ctx context.Context, o *model.Outcome) {
	if data, err := json.Marshal(o); err == nil {
		s.rdb.Set(ctx, redisOutcomeKey(o.MarketID, o.ID), data, s.ttl)
	}
}

func marketKey(id uint64) string                    { return fmt.Sprintf("market:%d", id) }
func redisOutcomeKey(marketID uint64, id uint8) string { return fmt.Sprintf("outcome:%d:%d", marketID, id) }
func userPositionsKey(user string) string           { return fmt.Sprintf("positions:%s", user) }

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)
