package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oddspool/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	platform  *model.PlatformConfig
	markets   map[uint64]*model.Market
	outcomes  map[string]*model.Outcome      // marketID:outcomeID
	positions map[string]*model.UserPosition // user:marketID:outcomeID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[uint64]*model.Market),
		outcomes:  make(map[string]*model.Outcome),
		positions: make(map[string]*model.UserPosition),
	}
}

func outcomeKey(marketID uint64, id uint8) string {
	return fmt.Sprintf("%d:%d", marketID, id)
}

func positionKey(user string, marketID uint64, outcomeID uint8) string {
	return fmt.Sprintf("%s:%d:%d", user, marketID, outcomeID)
}

// --- Platform ---

func (s *MemoryStore) CreatePlatform(_ context.Context, p *model.PlatformConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.platform != nil {
		return fmt.Errorf("%w: platform already initialized", ErrAlreadyExists)
	}
	cp := *p
	s.platform = &cp
	return nil
}

func (s *MemoryStore) GetPlatform(_ context.Context) (*model.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.platform == nil {
		return nil, fmt.Errorf("%w: platform not initialized", ErrNotFound)
	}
	cp := *s.platform
	return &cp, nil
}

func (s *MemoryStore) UpdatePlatform(_ context.Context, p *model.PlatformConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.platform == nil {
		return fmt.Errorf("%w: platform not initialized", ErrNotFound)
	}
	cp := *p
	s.platform = &cp
	return nil
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("%w: market %d", ErrAlreadyExists, m.ID)
	}
	s.markets[m.ID] = copyMarket(m)
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id uint64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	return copyMarket(m), nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *copyMarket(m))
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID > markets[j].ID })
	return markets, nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		return fmt.Errorf("%w: market %d", ErrNotFound, m.ID)
	}
	s.markets[m.ID] = copyMarket(m)
	return nil
}

// --- Outcomes ---

func (s *MemoryStore) CreateOutcome(_ context.Context, o *model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(o.MarketID, o.ID)
	if _, ok := s.outcomes[key]; ok {
		return fmt.Errorf("%w: outcome %d in market %d", ErrAlreadyExists, o.ID, o.MarketID)
	}
	cp := *o
	s.outcomes[key] = &cp
	return nil
}

func (s *MemoryStore) GetOutcome(_ context.Context, marketID uint64, id uint8) (*model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[outcomeKey(marketID, id)]
	if !ok {
		return nil, fmt.Errorf("%w: outcome %d in market %d", ErrNotFound, id, marketID)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListOutcomes(_ context.Context, marketID uint64) ([]model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, marketID)
	}

	// Registration order is the market's outcome list.
	outcomes := make([]model.Outcome, 0, len(m.Outcomes))
	for _, id := range m.Outcomes {
		if o, ok := s.outcomes[outcomeKey(marketID, id)]; ok {
			outcomes = append(outcomes, *o)
		}
	}
	return outcomes, nil
}

func (s *MemoryStore) UpdateOutcome(_ context.Context, o *model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(o.MarketID, o.ID)
	if _, ok := s.outcomes[key]; !ok {
		return fmt.Errorf("%w: outcome %d in market %d", ErrNotFound, o.ID, o.MarketID)
	}
	cp := *o
	s.outcomes[key] = &cp
	return nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, user string, marketID uint64, outcomeID uint8) (*model.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey(user, marketID, outcomeID)]
	if !ok {
		return nil, fmt.Errorf("%w: position %s/%d/%d", ErrNotFound, user, marketID, outcomeID)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p *model.UserPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[positionKey(p.User, p.MarketID, p.OutcomeID)] = &cp
	return nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, user string) ([]model.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.UserPosition
	for _, p := range s.positions {
		if p.User == user {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID != result[j].MarketID {
			return result[i].MarketID < result[j].MarketID
		}
		return result[i].OutcomeID < result[j].OutcomeID
	})
	return result, nil
}

func (s *MemoryStore) ListPositionsByMarket(_ context.Context, marketID uint64) ([]model.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.UserPosition
	for _, p := range s.positions {
		if p.MarketID == marketID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].User != result[j].User {
			return result[i].User < result[j].User
		}
		return result[i].OutcomeID < result[j].OutcomeID
	})
	return result, nil
}

func copyMarket(m *model.Market) *model.Market {
	cp := *m
	cp.Outcomes = append([]uint8(nil), m.Outcomes...)
	if m.Winner != nil {
		w := *m.Winner
		cp.Winner = &w
	}
	return &cp
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
