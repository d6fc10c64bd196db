package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/model"
)

// MemoryStore keeps entities in maps. Reads return copies.
type MemoryStore struct {
	mu          sync.RWMutex
	pools       map[common.Hash]model.Pool
	orderBooks  map[common.Hash]model.OrderBook
	limitOrders map[string]model.LimitOrder
	dcaOrders   map[string]model.DCAOrder
	events      []model.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:       make(map[common.Hash]model.Pool),
		orderBooks:  make(map[common.Hash]model.OrderBook),
		limitOrders: make(map[string]model.LimitOrder),
		dcaOrders:   make(map[string]model.DCAOrder),
	}
}

func (s *MemoryStore) GetPool(ctx context.Context, pair common.Hash) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[pair]
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s: %w", pair.Hex(), ErrNotFound)
	}
	return pool, nil
}

func (s *MemoryStore) GetOrderBook(ctx context.Context, pair common.Hash) (model.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.orderBooks[pair]
	if !ok {
		return model.OrderBook{}, fmt.Errorf("order book %s: %w", pair.Hex(), ErrNotFound)
	}
	return book, nil
}

func (s *MemoryStore) GetLimitOrder(ctx context.Context, id string) (model.LimitOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.limitOrders[id]
	if !ok {
		return model.LimitOrder{}, fmt.Errorf("limit order %s: %w", id, ErrNotFound)
	}
	return order, nil
}

func (s *MemoryStore) GetDCAOrder(ctx context.Context, id string) (model.DCAOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.dcaOrders[id]
	if !ok {
		return model.DCAOrder{}, fmt.Errorf("dca order %s: %w", id, ErrNotFound)
	}
	return order, nil
}

func (s *MemoryStore) ListOpenLimitOrders(ctx context.Context, after *Cursor, limit int) ([]model.LimitOrder, error) {
	s.mu.RLock()
	out := make([]model.LimitOrder, 0, len(s.limitOrders))
	for _, order := range s.limitOrders {
		if order.Status.Active() && !after.Before(order.CreatedAt, order.ID) {
			out = append(out, order)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListOpenDCAOrders(ctx context.Context, after *Cursor, limit int) ([]model.DCAOrder, error) {
	s.mu.RLock()
	out := make([]model.DCAOrder, 0, len(s.dcaOrders))
	for _, order := range s.dcaOrders {
		if order.Status.Active() && !after.Before(order.NextExecution, order.ID) {
			out = append(out, order)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextExecution != out[j].NextExecution {
			return out[i].NextExecution < out[j].NextExecution
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every committed event in commit order.
func (s *MemoryStore) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Commit runs settle under the write lock and applies cs only if it succeeds.
func (s *MemoryStore) Commit(ctx context.Context, cs Changeset, settle SettleFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}

	for _, pool := range cs.Pools {
		s.pools[pool.ID] = pool
	}
	for _, book := range cs.OrderBooks {
		s.orderBooks[book.Pair] = book
	}
	for _, order := range cs.LimitOrders {
		s.limitOrders[order.ID] = order
	}
	for _, order := range cs.DCAOrders {
		s.dcaOrders[order.ID] = order
	}
	s.events = append(s.events, cs.Events...)
	return nil
}
