package engine

import (
	"context"
	"math"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// DCARequest holds the parameters of a new DCA order.
type DCARequest struct {
	Pair           common.Hash
	Side           model.Side
	AmountPerCycle uint64
	TotalCycles    uint16
	// CycleFrequency is the interval between cycles in seconds.
	CycleFrequency int64
	SlippageBps    uint16
	// MinPrice and MaxPrice bound the pool price at which a cycle may run.
	// Zero leaves a side unbounded.
	MinPrice uint64
	MaxPrice uint64
}

// DCACycle describes a committed DCA cycle.
type DCACycle struct {
	SwapResult
	Order model.DCAOrder
}

// nextCycleAt returns now+frequency, failing rather than wrapping past the
// int64 range.
func nextCycleAt(now, frequency int64) (int64, error) {
	if frequency > 0 && now > math.MaxInt64-frequency {
		return 0, errorsmod.Wrapf(amm.ErrMathOverflow, "next cycle %d+%d", now, frequency)
	}
	return now + frequency, nil
}

// CreateDCAOrder escrows AmountPerCycle*TotalCycles and schedules the first
// cycle one interval from now.
func (e *Engine) CreateDCAOrder(ctx context.Context, caller common.Address, req DCARequest) (order model.DCAOrder, err error) {
	defer func() { e.observe("create_dca", err) }()

	if !req.Side.Valid() {
		return model.DCAOrder{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "invalid side %d", req.Side)
	}
	if req.AmountPerCycle == 0 {
		return model.DCAOrder{}, errorsmod.Wrap(amm.ErrInvalidAmount, "amount per cycle must be positive")
	}
	if req.TotalCycles == 0 || req.TotalCycles > MaxDCACycles {
		return model.DCAOrder{}, errorsmod.Wrapf(amm.ErrMaxCyclesExceeded, "%d cycles, allowed 1..%d", req.TotalCycles, MaxDCACycles)
	}
	if req.CycleFrequency < MinCycleFrequency {
		return model.DCAOrder{}, errorsmod.Wrapf(amm.ErrInvalidCycleFrequency, "%ds, minimum %ds", req.CycleFrequency, MinCycleFrequency)
	}
	if err := validSlippage(req.SlippageBps); err != nil {
		return model.DCAOrder{}, err
	}
	if req.MinPrice > 0 && req.MaxPrice > 0 && req.MinPrice >= req.MaxPrice {
		return model.DCAOrder{}, errorsmod.Wrapf(amm.ErrPriceOutOfRange, "min %d >= max %d", req.MinPrice, req.MaxPrice)
	}
	total, err := amm.CheckedMul(req.AmountPerCycle, uint64(req.TotalCycles))
	if err != nil {
		return model.DCAOrder{}, err
	}

	pool, err := e.loadActivePool(ctx, req.Pair)
	if err != nil {
		return model.DCAOrder{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.DCAOrder{}, err
	}

	next, err := nextCycleAt(now, req.CycleFrequency)
	if err != nil {
		return model.DCAOrder{}, err
	}

	id := e.newID()
	order = model.DCAOrder{
		ID:                   id,
		Owner:                caller,
		Pair:                 req.Pair,
		Side:                 req.Side,
		Status:               model.StatusOpen,
		AmountPerCycle:       req.AmountPerCycle,
		TotalCycles:          req.TotalCycles,
		CycleFrequency:       req.CycleFrequency,
		NextExecution:        next,
		MinPrice:             req.MinPrice,
		MaxPrice:             req.MaxPrice,
		SlippageToleranceBps: req.SlippageBps,
		Escrow:               model.EscrowAddress(id),
		EscrowOpen:           true,
		CreatedAt:            now,
	}
	tokenIn, _ := pool.Tokens(req.Side)
	ops := []ledger.Op{
		ledger.OpenEscrow(order.Escrow, caller),
		ledger.Transfer(tokenIn, caller, order.Escrow, total),
	}

	ev := poolEvent(model.EventDCACreated, pool, caller, now)
	ev.Order = id
	ev.Side = req.Side
	ev.AmountIn = total
	cs := storage.Changeset{
		DCAOrders: []model.DCAOrder{order},
		Events:    []model.Event{ev},
	}
	if err := e.commit(ctx, "create_dca", cs, ops); err != nil {
		return model.DCAOrder{}, err
	}

	e.logger.Info("dca order created",
		zap.String("order", id),
		zap.String("pair", req.Pair.Hex()),
		zap.String("owner", caller.Hex()),
		zap.Stringer("side", req.Side),
		zap.Uint64("amount_per_cycle", req.AmountPerCycle),
		zap.Uint16("cycles", req.TotalCycles),
		zap.Int64("frequency", req.CycleFrequency),
	)
	return order, nil
}

// ExecuteDCACycle runs the next due cycle of a DCA order. Anyone may call it.
func (e *Engine) ExecuteDCACycle(ctx context.Context, executor common.Address, id string) (res DCACycle, err error) {
	defer func() { e.observe("execute_dca", err) }()

	order, err := e.loadDCAOrder(ctx, id)
	if err != nil {
		return DCACycle{}, err
	}
	if order.Status == model.StatusCancelled || order.Status == model.StatusExpired {
		return DCACycle{}, errorsmod.Wrapf(amm.ErrInvalidOrderStatus, "dca order %s is %s", id, order.Status)
	}
	if order.CyclesExecuted >= order.TotalCycles {
		return DCACycle{}, errorsmod.Wrapf(amm.ErrDCACompleted, "dca order %s ran %d cycles", id, order.CyclesExecuted)
	}

	pool, err := e.loadActivePool(ctx, order.Pair)
	if err != nil {
		return DCACycle{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return DCACycle{}, err
	}
	if !order.Ready(now) {
		return DCACycle{}, errorsmod.Wrapf(amm.ErrDCANotReady, "next cycle at %d, now %d", order.NextExecution, now)
	}
	price, err := amm.SpotPrice(pool.ReserveA, pool.ReserveB)
	if err != nil {
		return DCACycle{}, err
	}
	if !order.InRange(price) {
		return DCACycle{}, errorsmod.Wrapf(amm.ErrPriceOutOfRange, "price %d outside [%d, %d]", price, order.MinPrice, order.MaxPrice)
	}

	t, err := e.execute(pool, tradeRequest{
		side:      order.Side,
		amountIn:  order.AmountPerCycle,
		tolerance: order.SlippageToleranceBps,
		payer:     order.Escrow,
		recipient: order.Owner,
	}, now)
	if err != nil {
		return DCACycle{}, err
	}

	next, err := nextCycleAt(now, order.CycleFrequency)
	if err != nil {
		return DCACycle{}, err
	}
	order.CyclesExecuted++
	order.LastExecution = now
	order.NextExecution = next
	order.TotalAmountIn = amm.SaturatingAdd(order.TotalAmountIn, t.AmountIn)
	order.TotalAmountOut = amm.SaturatingAdd(order.TotalAmountOut, t.AmountOut)
	ops := t.ops
	if order.CyclesExecuted >= order.TotalCycles {
		order.Status = model.StatusFilled
		order.EscrowOpen = false
		ops = append(ops, ledger.CloseEscrow(order.Escrow, order.Owner))
	} else {
		order.Status = model.StatusPartiallyFilled
	}

	ev := tradeEvent(model.EventDCACycle, t, executor, order.Side, now)
	ev.Order = id
	cs := storage.Changeset{
		Pools:     []model.Pool{t.Pool},
		DCAOrders: []model.DCAOrder{order},
		Events:    []model.Event{ev},
	}
	if err := e.commit(ctx, "execute_dca", cs, ops); err != nil {
		return DCACycle{}, err
	}
	e.metrics.ObserveTrade(t.Pool, order.Side, t.AmountIn, t.Fee, t.ProtocolFee, t.PriceImpactBps)

	e.logger.Info("dca cycle executed",
		zap.String("order", id),
		zap.String("executor", executor.Hex()),
		zap.Uint16("cycle", order.CyclesExecuted),
		zap.Uint16("total_cycles", order.TotalCycles),
		zap.Uint64("amount_out", t.AmountOut),
		zap.Stringer("status", order.Status),
	)
	return DCACycle{SwapResult: t.SwapResult, Order: order}, nil
}

// CancelDCAOrder refunds the unexecuted cycles to the owner.
func (e *Engine) CancelDCAOrder(ctx context.Context, caller common.Address, id string) (order model.DCAOrder, refund uint64, err error) {
	defer func() { e.observe("cancel_dca", err) }()

	order, err = e.loadDCAOrder(ctx, id)
	if err != nil {
		return model.DCAOrder{}, 0, err
	}
	if caller != order.Owner {
		return model.DCAOrder{}, 0, errorsmod.Wrapf(amm.ErrUnauthorized, "%s does not own %s", caller.Hex(), id)
	}
	switch order.Status {
	case model.StatusFilled:
		return model.DCAOrder{}, 0, errorsmod.Wrapf(amm.ErrOrderAlreadyFilled, "dca order %s", id)
	case model.StatusCancelled:
		return model.DCAOrder{}, 0, errorsmod.Wrapf(amm.ErrOrderAlreadyCancelled, "dca order %s", id)
	case model.StatusExpired:
		return model.DCAOrder{}, 0, errorsmod.Wrapf(amm.ErrInvalidOrderStatus, "dca order %s is expired", id)
	}

	pool, err := e.loadPool(ctx, order.Pair)
	if err != nil {
		return model.DCAOrder{}, 0, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return model.DCAOrder{}, 0, err
	}

	refund, err = amm.CheckedMul(uint64(order.RemainingCycles()), order.AmountPerCycle)
	if err != nil {
		return model.DCAOrder{}, 0, err
	}
	order.Status = model.StatusCancelled
	order.EscrowOpen = false

	tokenIn, _ := pool.Tokens(order.Side)
	ops := []ledger.Op{
		ledger.Transfer(tokenIn, order.Escrow, order.Owner, refund),
		ledger.CloseEscrow(order.Escrow, order.Owner),
	}

	ev := poolEvent(model.EventDCACancelled, pool, caller, now)
	ev.Order = id
	ev.Side = order.Side
	ev.AmountIn = refund
	cs := storage.Changeset{
		DCAOrders: []model.DCAOrder{order},
		Events:    []model.Event{ev},
	}
	if err := e.commit(ctx, "cancel_dca", cs, ops); err != nil {
		return model.DCAOrder{}, 0, err
	}

	e.logger.Info("dca order cancelled",
		zap.String("order", id),
		zap.Uint16("cycles_executed", order.CyclesExecuted),
		zap.Uint64("refund", refund),
	)
	return order, refund, nil
}

// DCAOrder returns the current state of a DCA order.
func (e *Engine) DCAOrder(ctx context.Context, id string) (model.DCAOrder, error) {
	return e.loadDCAOrder(ctx, id)
}
