package engine

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// LimitFill describes a committed limit execution.
type LimitFill struct {
	SwapResult
	Filled uint64
	Order  model.LimitOrder
}

// PlaceLimitOrder escrows amountIn and rests an order until the pool price
// crosses limitPrice. expiresAt 0 means the order never expires.
func (e *Engine) PlaceLimitOrder(ctx context.Context, caller common.Address, pair common.Hash, side model.Side, amountIn, limitPrice uint64, slippageBps uint16, expiresAt int64) (order model.LimitOrder, err error) {
	defer func() { e.observe("place_limit", err) }()

	if !side.Valid() {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "invalid side %d", side)
	}
	if amountIn == 0 {
		return model.LimitOrder{}, errorsmod.Wrap(amm.ErrInvalidAmount, "amount must be positive")
	}
	if limitPrice == 0 {
		return model.LimitOrder{}, errorsmod.Wrap(amm.ErrInvalidLimitPrice, "limit price must be positive")
	}
	if err := validSlippage(slippageBps); err != nil {
		return model.LimitOrder{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.LimitOrder{}, err
	}
	if expiresAt != 0 && expiresAt <= now {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrInvalidExpirationTime, "expires at %d, now %d", expiresAt, now)
	}

	pool, err := e.loadActivePool(ctx, pair)
	if err != nil {
		return model.LimitOrder{}, err
	}
	book, err := e.loadOrderBook(ctx, pair)
	if err != nil {
		return model.LimitOrder{}, err
	}
	if err := bookOpened(&book, side); err != nil {
		return model.LimitOrder{}, err
	}

	id := e.newID()
	order = model.LimitOrder{
		ID:                   id,
		Owner:                caller,
		Pair:                 pair,
		OrderBook:            book.Pair,
		Side:                 side,
		Status:               model.StatusOpen,
		AmountIn:             amountIn,
		LimitPrice:           limitPrice,
		SlippageToleranceBps: slippageBps,
		Escrow:               model.EscrowAddress(id),
		EscrowOpen:           true,
		CreatedAt:            now,
		ExpiresAt:            expiresAt,
	}
	tokenIn, _ := pool.Tokens(side)
	ops := []ledger.Op{
		ledger.OpenEscrow(order.Escrow, caller),
		ledger.Transfer(tokenIn, caller, order.Escrow, amountIn),
	}

	ev := poolEvent(model.EventLimitPlaced, pool, caller, now)
	ev.Order = id
	ev.Side = side
	ev.AmountIn = amountIn
	cs := storage.Changeset{
		OrderBooks:  []model.OrderBook{book},
		LimitOrders: []model.LimitOrder{order},
		Events:      []model.Event{ev},
	}
	if err := e.commit(ctx, "place_limit", cs, ops); err != nil {
		return model.LimitOrder{}, err
	}

	e.logger.Info("limit order placed",
		zap.String("order", id),
		zap.String("pair", pair.Hex()),
		zap.String("owner", caller.Hex()),
		zap.Stringer("side", side),
		zap.Uint64("amount_in", amountIn),
		zap.Uint64("limit_price", limitPrice),
		zap.Int64("expires_at", expiresAt),
	)
	return order, nil
}

// limitReached reports whether price satisfies a limit on side. Buy orders
// pay token A for token B, so they want a low price; sell orders a high one.
func limitReached(side model.Side, price, limit uint64) bool {
	if side == model.SideBuy {
		return price <= limit
	}
	return price >= limit
}

// ExecuteLimitOrder fills an order whose limit is reached. Anyone may call it.
// fillAmount 0 fills the whole remainder; other values require
// Config.AllowPartialFills. An order found past its expiry is marked Expired
// and ErrOrderExpired is returned; its escrow stays open for the owner to
// reclaim.
func (e *Engine) ExecuteLimitOrder(ctx context.Context, executor common.Address, id string, fillAmount uint64) (res LimitFill, err error) {
	defer func() { e.observe("execute_limit", err) }()

	order, err := e.loadLimitOrder(ctx, id)
	if err != nil {
		return LimitFill{}, err
	}
	pool, err := e.loadPool(ctx, order.Pair)
	if err != nil {
		return LimitFill{}, err
	}
	if pool.Paused {
		return LimitFill{}, errorsmod.Wrapf(amm.ErrPoolPaused, "pair %s", pool.ID.Hex())
	}
	switch order.Status {
	case model.StatusFilled:
		return LimitFill{}, errorsmod.Wrapf(amm.ErrOrderAlreadyFilled, "limit order %s", id)
	case model.StatusCancelled:
		return LimitFill{}, errorsmod.Wrapf(amm.ErrOrderAlreadyCancelled, "limit order %s", id)
	case model.StatusExpired:
		return LimitFill{}, errorsmod.Wrapf(amm.ErrOrderExpired, "limit order %s", id)
	}

	now, err := e.now(ctx)
	if err != nil {
		return LimitFill{}, err
	}
	book, err := e.loadOrderBook(ctx, order.OrderBook)
	if err != nil {
		return LimitFill{}, err
	}

	if order.ExpiredAt(now) {
		if err := e.expireLimitOrder(ctx, executor, pool, book, order, now); err != nil {
			return LimitFill{}, err
		}
		return LimitFill{}, errorsmod.Wrapf(amm.ErrOrderExpired, "limit order %s expired at %d", id, order.ExpiresAt)
	}

	price, err := amm.SpotPrice(pool.ReserveA, pool.ReserveB)
	if err != nil {
		return LimitFill{}, err
	}
	if !limitReached(order.Side, price, order.LimitPrice) {
		return LimitFill{}, errorsmod.Wrapf(amm.ErrLimitPriceNotReached, "price %d, %s limit %d", price, order.Side, order.LimitPrice)
	}

	remaining := order.Remaining()
	fill := fillAmount
	if fill == 0 {
		fill = remaining
	}
	if fill > remaining || (!e.cfg.AllowPartialFills && fill != remaining) {
		return LimitFill{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "fill %d of remaining %d", fill, remaining)
	}

	t, err := e.execute(pool, tradeRequest{
		side:      order.Side,
		amountIn:  fill,
		tolerance: order.SlippageToleranceBps,
		payer:     order.Escrow,
		recipient: order.Owner,
	}, now)
	if err != nil {
		return LimitFill{}, err
	}

	order.AmountFilled += fill
	order.AmountOut = amm.SaturatingAdd(order.AmountOut, t.AmountOut)
	book.TotalVolume = amm.SaturatingAdd(book.TotalVolume, fill)
	ops := t.ops
	if order.Remaining() == 0 {
		order.Status = model.StatusFilled
		order.EscrowOpen = false
		bookClosed(&book, order.Side)
		ops = append(ops, ledger.CloseEscrow(order.Escrow, order.Owner))
	} else {
		order.Status = model.StatusPartiallyFilled
	}

	ev := tradeEvent(model.EventLimitFilled, t, executor, order.Side, now)
	ev.Order = id
	cs := storage.Changeset{
		Pools:       []model.Pool{t.Pool},
		OrderBooks:  []model.OrderBook{book},
		LimitOrders: []model.LimitOrder{order},
		Events:      []model.Event{ev},
	}
	if err := e.commit(ctx, "execute_limit", cs, ops); err != nil {
		return LimitFill{}, err
	}
	e.metrics.ObserveTrade(t.Pool, order.Side, t.AmountIn, t.Fee, t.ProtocolFee, t.PriceImpactBps)

	e.logger.Info("limit order executed",
		zap.String("order", id),
		zap.String("executor", executor.Hex()),
		zap.Uint64("filled", fill),
		zap.Uint64("amount_out", t.AmountOut),
		zap.Uint64("price", price),
		zap.Stringer("status", order.Status),
	)
	return LimitFill{SwapResult: t.SwapResult, Filled: fill, Order: order}, nil
}

func (e *Engine) expireLimitOrder(ctx context.Context, actor common.Address, pool model.Pool, book model.OrderBook, order model.LimitOrder, now int64) error {
	order.Status = model.StatusExpired
	bookClosed(&book, order.Side)

	ev := poolEvent(model.EventLimitExpired, pool, actor, now)
	ev.Order = order.ID
	ev.Side = order.Side
	cs := storage.Changeset{
		OrderBooks:  []model.OrderBook{book},
		LimitOrders: []model.LimitOrder{order},
		Events:      []model.Event{ev},
	}
	if err := e.commit(ctx, "expire_limit", cs, nil); err != nil {
		return err
	}
	e.logger.Info("limit order expired", zap.String("order", order.ID), zap.Int64("expires_at", order.ExpiresAt))
	return nil
}

// CancelLimitOrder refunds the unfilled remainder to the owner.
func (e *Engine) CancelLimitOrder(ctx context.Context, caller common.Address, id string) (order model.LimitOrder, err error) {
	defer func() { e.observe("cancel_limit", err) }()

	order, err = e.loadLimitOrder(ctx, id)
	if err != nil {
		return model.LimitOrder{}, err
	}
	if caller != order.Owner {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrUnauthorized, "%s does not own %s", caller.Hex(), id)
	}
	switch order.Status {
	case model.StatusFilled:
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrOrderAlreadyFilled, "limit order %s", id)
	case model.StatusCancelled:
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrOrderAlreadyCancelled, "limit order %s", id)
	case model.StatusExpired:
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrOrderExpired, "limit order %s", id)
	}

	pool, err := e.loadPool(ctx, order.Pair)
	if err != nil {
		return model.LimitOrder{}, err
	}
	book, err := e.loadOrderBook(ctx, order.OrderBook)
	if err != nil {
		return model.LimitOrder{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.LimitOrder{}, err
	}

	refund := order.Remaining()
	order.Status = model.StatusCancelled
	order.EscrowOpen = false
	bookClosed(&book, order.Side)

	tokenIn, _ := pool.Tokens(order.Side)
	ops := []ledger.Op{
		ledger.Transfer(tokenIn, order.Escrow, order.Owner, refund),
		ledger.CloseEscrow(order.Escrow, order.Owner),
	}

	ev := poolEvent(model.EventLimitCancelled, pool, caller, now)
	ev.Order = id
	ev.Side = order.Side
	ev.AmountIn = refund
	cs := storage.Changeset{
		OrderBooks:  []model.OrderBook{book},
		LimitOrders: []model.LimitOrder{order},
		Events:      []model.Event{ev},
	}
	if err := e.commit(ctx, "cancel_limit", cs, ops); err != nil {
		return model.LimitOrder{}, err
	}

	e.logger.Info("limit order cancelled", zap.String("order", id), zap.Uint64("refund", refund))
	return order, nil
}

// ReclaimExpiredLimitOrder returns the escrowed remainder of an expired order
// to its owner and closes the escrow. The order stays Expired.
func (e *Engine) ReclaimExpiredLimitOrder(ctx context.Context, caller common.Address, id string) (order model.LimitOrder, err error) {
	defer func() { e.observe("reclaim_limit", err) }()

	order, err = e.loadLimitOrder(ctx, id)
	if err != nil {
		return model.LimitOrder{}, err
	}
	if caller != order.Owner {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrUnauthorized, "%s does not own %s", caller.Hex(), id)
	}
	if order.Status != model.StatusExpired || !order.EscrowOpen {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrInvalidOrderStatus, "limit order %s is %s", id, order.Status)
	}

	pool, err := e.loadPool(ctx, order.Pair)
	if err != nil {
		return model.LimitOrder{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.LimitOrder{}, err
	}

	refund := order.Remaining()
	order.EscrowOpen = false
	tokenIn, _ := pool.Tokens(order.Side)
	ops := []ledger.Op{
		ledger.Transfer(tokenIn, order.Escrow, order.Owner, refund),
		ledger.CloseEscrow(order.Escrow, order.Owner),
	}

	ev := poolEvent(model.EventLimitReclaimed, pool, caller, now)
	ev.Order = id
	ev.Side = order.Side
	ev.AmountIn = refund
	cs := storage.Changeset{
		LimitOrders: []model.LimitOrder{order},
		Events:      []model.Event{ev},
	}
	if err := e.commit(ctx, "reclaim_limit", cs, ops); err != nil {
		return model.LimitOrder{}, err
	}

	e.logger.Info("expired limit order reclaimed", zap.String("order", id), zap.Uint64("refund", refund))
	return order, nil
}

// LimitOrder returns the current state of a limit order.
func (e *Engine) LimitOrder(ctx context.Context, id string) (model.LimitOrder, error) {
	return e.loadLimitOrder(ctx, id)
}
