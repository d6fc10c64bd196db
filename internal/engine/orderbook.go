package engine

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// InitOrderBook creates the order book of an existing pool.
func (e *Engine) InitOrderBook(ctx context.Context, caller common.Address, pair common.Hash) (book model.OrderBook, err error) {
	defer func() { e.observe("init_order_book", err) }()

	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return model.OrderBook{}, err
	}
	_, err = e.store.GetOrderBook(ctx, pair)
	switch {
	case err == nil:
		return model.OrderBook{}, errorsmod.Wrapf(amm.ErrOrderBookExists, "pair %s", pair.Hex())
	case !errors.Is(err, storage.ErrNotFound):
		return model.OrderBook{}, fmt.Errorf("load order book: %w", err)
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.OrderBook{}, err
	}

	book = model.OrderBook{Pair: pair}
	cs := storage.Changeset{
		OrderBooks: []model.OrderBook{book},
		Events:     []model.Event{poolEvent(model.EventOrderBookCreated, pool, caller, now)},
	}
	if err := e.commit(ctx, "init_order_book", cs, nil); err != nil {
		return model.OrderBook{}, err
	}
	e.logger.Info("order book created", zap.String("pair", pair.Hex()))
	return book, nil
}

// OrderBook returns the order book of pair.
func (e *Engine) OrderBook(ctx context.Context, pair common.Hash) (model.OrderBook, error) {
	return e.loadOrderBook(ctx, pair)
}

func bookOpened(book *model.OrderBook, side model.Side) error {
	count := &book.SellOrdersCount
	if side == model.SideBuy {
		count = &book.BuyOrdersCount
	}
	next, err := amm.CheckedAdd(*count, 1)
	if err != nil {
		return errorsmod.Wrapf(amm.ErrOrderBookFull, "%s side", side)
	}
	*count = next
	return nil
}

func bookClosed(book *model.OrderBook, side model.Side) {
	if side == model.SideBuy {
		book.BuyOrdersCount = amm.SaturatingSub(book.BuyOrdersCount, 1)
		return
	}
	book.SellOrdersCount = amm.SaturatingSub(book.SellOrdersCount, 1)
}
