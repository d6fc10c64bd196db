package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/model"
)

var ErrNotFound = errors.New("not found")

// Changeset is the set of entity writes produced by one engine operation.
type Changeset struct {
	Pools       []model.Pool
	OrderBooks  []model.OrderBook
	LimitOrders []model.LimitOrder
	DCAOrders   []model.DCAOrder
	Events      []model.Event
}

// Empty reports whether the changeset writes nothing.
func (c Changeset) Empty() bool {
	return len(c.Pools) == 0 && len(c.OrderBooks) == 0 && len(c.LimitOrders) == 0 &&
		len(c.DCAOrders) == 0 && len(c.Events) == 0
}

// SettleFunc moves the funds that back a changeset. A non-nil error aborts
// the commit.
type SettleFunc func(ctx context.Context) error

// Cursor is a keyset position in an order listing: the sort key and ID of the
// last row already seen.
type Cursor struct {
	Key int64
	ID  string
}

// Before reports whether (key, id) sorts at or before the cursor.
func (c *Cursor) Before(key int64, id string) bool {
	if c == nil {
		return false
	}
	return key < c.Key || (key == c.Key && id <= c.ID)
}

// Store persists pools, order books and orders.
type Store interface {
	GetPool(ctx context.Context, pair common.Hash) (model.Pool, error)
	GetOrderBook(ctx context.Context, pair common.Hash) (model.OrderBook, error)
	GetLimitOrder(ctx context.Context, id string) (model.LimitOrder, error)
	GetDCAOrder(ctx context.Context, id string) (model.DCAOrder, error)
	// ListOpenLimitOrders returns Open and PartiallyFilled limit orders
	// ordered by (CreatedAt, ID), starting strictly after the cursor when
	// after is non-nil. limit <= 0 means no limit.
	ListOpenLimitOrders(ctx context.Context, after *Cursor, limit int) ([]model.LimitOrder, error)
	// ListOpenDCAOrders is ListOpenLimitOrders for DCA orders, ordered by
	// (NextExecution, ID).
	ListOpenDCAOrders(ctx context.Context, after *Cursor, limit int) ([]model.DCAOrder, error)
	// Commit writes cs and runs settle so that either both take effect or
	// neither does. settle may be nil.
	Commit(ctx context.Context, cs Changeset, settle SettleFunc) error
}

// Journal is an append-only sink for committed events.
type Journal interface {
	PutEvents(ctx context.Context, events []model.Event) error
}
