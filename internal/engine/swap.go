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

// SwapResult describes a committed curve execution.
type SwapResult struct {
	AmountIn       uint64
	AmountOut      uint64
	Fee            uint64
	ProtocolFee    uint64
	PriceImpactBps uint16
	Pool           model.Pool
}

type tradeRequest struct {
	side      model.Side
	amountIn  uint64
	minOut    uint64
	tolerance uint16
	payer     common.Address
	recipient common.Address
}

type trade struct {
	SwapResult
	ops []ledger.Op
}

// execute prices req against pool and returns the post-trade pool together
// with the transfers that settle it. pool is not modified.
func (e *Engine) execute(pool model.Pool, req tradeRequest, now int64) (trade, error) {
	if !req.side.Valid() {
		return trade{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "invalid side %d", req.side)
	}
	rIn, rOut := pool.Reserves(req.side)

	out, fee, err := amm.SwapOutput(req.amountIn, rIn, rOut, pool.FeeRateBps)
	if err != nil {
		return trade{}, err
	}
	if out < req.minOut {
		return trade{}, errorsmod.Wrapf(amm.ErrSlippageExceeded, "output %d below minimum %d", out, req.minOut)
	}
	impact, err := amm.PriceImpactBps(req.amountIn, out, rIn, rOut)
	if err != nil {
		return trade{}, err
	}
	if impact > e.cfg.MaxPriceImpactBps {
		return trade{}, errorsmod.Wrapf(amm.ErrPriceImpactTooHigh, "impact %d bps above %d", impact, e.cfg.MaxPriceImpactBps)
	}
	if impact > req.tolerance {
		return trade{}, errorsmod.Wrapf(amm.ErrSlippageExceeded, "impact %d bps above tolerance %d", impact, req.tolerance)
	}
	protocolFee, err := amm.ProtocolFee(fee, pool.ProtocolFeeRateBps)
	if err != nil {
		return trade{}, err
	}

	newIn, err := amm.CheckedAdd(rIn, req.amountIn-protocolFee)
	if err != nil {
		return trade{}, err
	}
	newOut := rOut - out

	payOut := e.cfg.ProtocolFeeRecipient != (common.Address{})
	var held uint64
	if !payOut {
		held = protocolFee
	}

	tokenIn, tokenOut := pool.Tokens(req.side)
	if req.side == model.SideBuy {
		pool.ReserveA, pool.ReserveB = newIn, newOut
		pool.FeesA = amm.SaturatingAdd(pool.FeesA, fee)
		pool.ProtocolFeesA = amm.SaturatingAdd(pool.ProtocolFeesA, protocolFee)
		if pool.HeldProtocolFeesA, err = amm.CheckedAdd(pool.HeldProtocolFeesA, held); err != nil {
			return trade{}, err
		}
	} else {
		pool.ReserveB, pool.ReserveA = newIn, newOut
		pool.FeesB = amm.SaturatingAdd(pool.FeesB, fee)
		pool.ProtocolFeesB = amm.SaturatingAdd(pool.ProtocolFeesB, protocolFee)
		if pool.HeldProtocolFeesB, err = amm.CheckedAdd(pool.HeldProtocolFeesB, held); err != nil {
			return trade{}, err
		}
	}
	pool.LastUpdateTime = now

	ops := []ledger.Op{
		ledger.Transfer(tokenIn, req.payer, pool.Vault, req.amountIn),
		ledger.Transfer(tokenOut, pool.Vault, req.recipient, out),
	}
	if protocolFee > 0 && payOut {
		ops = append(ops, ledger.Transfer(tokenIn, pool.Vault, e.cfg.ProtocolFeeRecipient, protocolFee))
	}

	return trade{
		SwapResult: SwapResult{
			AmountIn:       req.amountIn,
			AmountOut:      out,
			Fee:            fee,
			ProtocolFee:    protocolFee,
			PriceImpactBps: impact,
			Pool:           pool,
		},
		ops: ops,
	}, nil
}

func tradeEvent(kind model.EventKind, t trade, actor common.Address, side model.Side, now int64) model.Event {
	ev := poolEvent(kind, t.Pool, actor, now)
	ev.Side = side
	ev.AmountIn = t.AmountIn
	ev.AmountOut = t.AmountOut
	ev.Fee = t.Fee
	ev.ProtocolFee = t.ProtocolFee
	return ev
}

// Swap trades amountIn of the side's input token for the output token.
func (e *Engine) Swap(ctx context.Context, caller common.Address, pair common.Hash, side model.Side, amountIn, minAmountOut uint64) (res SwapResult, err error) {
	defer func() { e.observe("swap", err) }()
	return e.swap(ctx, "swap", caller, pair, side, amountIn, minAmountOut, amm.BasisPoints)
}

// ExecuteMarketOrder is Swap with an additional bound on the price impact of
// the execution.
func (e *Engine) ExecuteMarketOrder(ctx context.Context, caller common.Address, pair common.Hash, side model.Side, amountIn, minAmountOut uint64, slippageBps uint16) (res SwapResult, err error) {
	defer func() { e.observe("market_order", err) }()
	if err := validSlippage(slippageBps); err != nil {
		return SwapResult{}, err
	}
	return e.swap(ctx, "market_order", caller, pair, side, amountIn, minAmountOut, slippageBps)
}

func (e *Engine) swap(ctx context.Context, op string, caller common.Address, pair common.Hash, side model.Side, amountIn, minAmountOut uint64, tolerance uint16) (SwapResult, error) {
	pool, err := e.loadActivePool(ctx, pair)
	if err != nil {
		return SwapResult{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return SwapResult{}, err
	}

	t, err := e.execute(pool, tradeRequest{
		side:      side,
		amountIn:  amountIn,
		minOut:    minAmountOut,
		tolerance: tolerance,
		payer:     caller,
		recipient: caller,
	}, now)
	if err != nil {
		return SwapResult{}, err
	}

	cs := storage.Changeset{
		Pools:  []model.Pool{t.Pool},
		Events: []model.Event{tradeEvent(model.EventSwap, t, caller, side, now)},
	}
	if err := e.commit(ctx, op, cs, t.ops); err != nil {
		return SwapResult{}, err
	}
	e.metrics.ObserveTrade(t.Pool, side, t.AmountIn, t.Fee, t.ProtocolFee, t.PriceImpactBps)

	e.logger.Info("swap executed",
		zap.String("pair", pair.Hex()),
		zap.String("trader", caller.Hex()),
		zap.Stringer("side", side),
		zap.Uint64("amount_in", t.AmountIn),
		zap.Uint64("amount_out", t.AmountOut),
		zap.Uint64("fee", t.Fee),
		zap.Uint16("impact_bps", t.PriceImpactBps),
	)
	return t.SwapResult, nil
}
