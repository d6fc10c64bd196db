package engine

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// LiquidityResult describes a committed deposit.
type LiquidityResult struct {
	Shares  uint64
	AmountA uint64
	AmountB uint64
	Pool    model.Pool
}

// WithdrawResult describes a committed withdrawal.
type WithdrawResult struct {
	Burned  uint64
	AmountA uint64
	AmountB uint64
	Pool    model.Pool
}

// FeeInfo is the fee configuration and accumulated fees of a pool.
type FeeInfo struct {
	FeeRateBps         uint16 `json:"fee_rate_bps"`
	ProtocolFeeRateBps uint16 `json:"protocol_fee_rate_bps"`
	FeesA              uint64 `json:"fees_a"`
	FeesB              uint64 `json:"fees_b"`
	ProtocolFeesA      uint64 `json:"protocol_fees_a"`
	ProtocolFeesB      uint64 `json:"protocol_fees_b"`
	HeldProtocolFeesA  uint64 `json:"held_protocol_fees_a"`
	HeldProtocolFeesB  uint64 `json:"held_protocol_fees_b"`
}

// CreatePool registers an empty pool for the ordered pair (tokenA, tokenB).
// The caller becomes the pool admin.
func (e *Engine) CreatePool(ctx context.Context, caller, tokenA, tokenB common.Address, feeRateBps, protocolFeeRateBps uint16) (pool model.Pool, err error) {
	defer func() { e.observe("create_pool", err) }()

	zero := common.Address{}
	if tokenA == zero || tokenB == zero || tokenA == tokenB {
		return model.Pool{}, errorsmod.Wrapf(amm.ErrInvalidTokenPair, "%s/%s", tokenA.Hex(), tokenB.Hex())
	}
	if feeRateBps > amm.BasisPoints || protocolFeeRateBps > amm.BasisPoints {
		return model.Pool{}, errorsmod.Wrapf(amm.ErrInvalidFeeRate, "fee %d protocol %d", feeRateBps, protocolFeeRateBps)
	}

	pair := model.PairID(tokenA, tokenB)
	_, err = e.store.GetPool(ctx, pair)
	switch {
	case err == nil:
		return model.Pool{}, errorsmod.Wrapf(amm.ErrPoolExists, "pair %s", pair.Hex())
	case !errors.Is(err, storage.ErrNotFound):
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}

	now, err := e.now(ctx)
	if err != nil {
		return model.Pool{}, err
	}

	pool = model.Pool{
		ID:                 pair,
		TokenA:             tokenA,
		TokenB:             tokenB,
		LPMint:             model.LPMintAddress(pair),
		Vault:              model.VaultAddress(pair),
		Admin:              caller,
		FeeRateBps:         feeRateBps,
		ProtocolFeeRateBps: protocolFeeRateBps,
		CreatedAt:          now,
		LastUpdateTime:     now,
	}
	cs := storage.Changeset{
		Pools:  []model.Pool{pool},
		Events: []model.Event{poolEvent(model.EventPoolCreated, pool, caller, now)},
	}
	if err := e.commit(ctx, "create_pool", cs, nil); err != nil {
		return model.Pool{}, err
	}

	e.logger.Info("pool created",
		zap.String("pair", pair.Hex()),
		zap.String("token_a", tokenA.Hex()),
		zap.String("token_b", tokenB.Hex()),
		zap.Uint16("fee_bps", feeRateBps),
		zap.Uint16("protocol_fee_bps", protocolFeeRateBps),
	)
	return pool, nil
}

// SetPaused toggles the pause flag. Only the pool admin may call it.
func (e *Engine) SetPaused(ctx context.Context, caller common.Address, pair common.Hash, paused bool) (err error) {
	defer func() { e.observe("set_paused", err) }()

	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return err
	}
	if caller != pool.Admin {
		return errorsmod.Wrapf(amm.ErrUnauthorized, "%s is not admin of %s", caller.Hex(), pair.Hex())
	}
	if pool.Paused == paused {
		return nil
	}

	now, err := e.now(ctx)
	if err != nil {
		return err
	}
	pool.Paused = paused
	pool.LastUpdateTime = now

	cs := storage.Changeset{
		Pools:  []model.Pool{pool},
		Events: []model.Event{poolEvent(model.EventPoolPaused, pool, caller, now)},
	}
	if err := e.commit(ctx, "set_paused", cs, nil); err != nil {
		return err
	}
	e.logger.Info("pool pause changed", zap.String("pair", pair.Hex()), zap.Bool("paused", paused))
	return nil
}

// CollectProtocolFees pays the protocol fees held in the vault to to. Only the
// pool admin may call it; it is allowed while the pool is paused.
func (e *Engine) CollectProtocolFees(ctx context.Context, caller common.Address, pair common.Hash, to common.Address) (amountA, amountB uint64, err error) {
	defer func() { e.observe("collect_protocol_fees", err) }()

	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return 0, 0, err
	}
	if caller != pool.Admin {
		return 0, 0, errorsmod.Wrapf(amm.ErrUnauthorized, "%s is not admin of %s", caller.Hex(), pair.Hex())
	}
	if to == (common.Address{}) {
		return 0, 0, errorsmod.Wrap(amm.ErrInvalidAmount, "fee recipient is zero")
	}
	amountA, amountB = pool.HeldProtocolFeesA, pool.HeldProtocolFeesB
	if amountA == 0 && amountB == 0 {
		return 0, 0, errorsmod.Wrapf(amm.ErrInvalidAmount, "no protocol fees held by %s", pair.Hex())
	}

	now, err := e.now(ctx)
	if err != nil {
		return 0, 0, err
	}
	pool.HeldProtocolFeesA, pool.HeldProtocolFeesB = 0, 0
	pool.LastUpdateTime = now

	var ops []ledger.Op
	if amountA > 0 {
		ops = append(ops, ledger.Transfer(pool.TokenA, pool.Vault, to, amountA))
	}
	if amountB > 0 {
		ops = append(ops, ledger.Transfer(pool.TokenB, pool.Vault, to, amountB))
	}
	ev := poolEvent(model.EventFeesCollected, pool, caller, now)
	ev.AmountA = amountA
	ev.AmountB = amountB
	cs := storage.Changeset{
		Pools:  []model.Pool{pool},
		Events: []model.Event{ev},
	}
	if err := e.commit(ctx, "collect_protocol_fees", cs, ops); err != nil {
		return 0, 0, err
	}
	e.logger.Info("protocol fees collected",
		zap.String("pair", pair.Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("amount_a", amountA),
		zap.Uint64("amount_b", amountB),
	)
	return amountA, amountB, nil
}

// AddLiquidity deposits both assets and mints LP shares to caller. The first
// deposit locks MinimumLiquidity shares in LockedLiquidityAccount.
func (e *Engine) AddLiquidity(ctx context.Context, caller common.Address, pair common.Hash, amountA, amountB, minShares uint64) (res LiquidityResult, err error) {
	defer func() { e.observe("add_liquidity", err) }()

	if amountA == 0 || amountB == 0 {
		return LiquidityResult{}, errorsmod.Wrap(amm.ErrInvalidAmount, "both amounts must be positive")
	}
	pool, err := e.loadActivePool(ctx, pair)
	if err != nil {
		return LiquidityResult{}, err
	}
	now, err := e.now(ctx)
	if err != nil {
		return LiquidityResult{}, err
	}

	var minted, credited, locked uint64
	if pool.LPSupply == 0 {
		minted, err = amm.InitialLPShares(amountA, amountB)
		if err != nil {
			return LiquidityResult{}, err
		}
		if minted <= amm.MinimumLiquidity {
			return LiquidityResult{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "initial shares %d do not exceed the locked minimum %d", minted, amm.MinimumLiquidity)
		}
		locked = amm.MinimumLiquidity
		credited = minted - locked
	} else {
		minted, err = amm.ProportionalLPShares(amountA, amountB, pool.ReserveA, pool.ReserveB, pool.LPSupply)
		if err != nil {
			return LiquidityResult{}, err
		}
		credited = minted
	}
	if credited < minShares {
		return LiquidityResult{}, errorsmod.Wrapf(amm.ErrSlippageExceeded, "shares %d below minimum %d", credited, minShares)
	}

	if pool.ReserveA, err = amm.CheckedAdd(pool.ReserveA, amountA); err != nil {
		return LiquidityResult{}, err
	}
	if pool.ReserveB, err = amm.CheckedAdd(pool.ReserveB, amountB); err != nil {
		return LiquidityResult{}, err
	}
	if pool.LPSupply, err = amm.CheckedAdd(pool.LPSupply, minted); err != nil {
		return LiquidityResult{}, err
	}
	pool.LastUpdateTime = now

	ops := []ledger.Op{
		ledger.Transfer(pool.TokenA, caller, pool.Vault, amountA),
		ledger.Transfer(pool.TokenB, caller, pool.Vault, amountB),
		ledger.Mint(pool.LPMint, caller, credited),
	}
	if locked > 0 {
		ops = append(ops, ledger.Mint(pool.LPMint, LockedLiquidityAccount, locked))
	}

	ev := poolEvent(model.EventLiquidityAdded, pool, caller, now)
	ev.AmountA = amountA
	ev.AmountB = amountB
	ev.Shares = credited
	cs := storage.Changeset{Pools: []model.Pool{pool}, Events: []model.Event{ev}}
	if err := e.commit(ctx, "add_liquidity", cs, ops); err != nil {
		return LiquidityResult{}, err
	}

	e.logger.Info("liquidity added",
		zap.String("pair", pair.Hex()),
		zap.String("provider", caller.Hex()),
		zap.Uint64("amount_a", amountA),
		zap.Uint64("amount_b", amountB),
		zap.Uint64("shares", credited),
		zap.Uint64("locked", locked),
	)
	return LiquidityResult{Shares: credited, AmountA: amountA, AmountB: amountB, Pool: pool}, nil
}

// RemoveLiquidity burns lpAmount of caller's shares for a pro-rata claim on
// both reserves.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller common.Address, pair common.Hash, lpAmount, minA, minB uint64) (res WithdrawResult, err error) {
	defer func() { e.observe("remove_liquidity", err) }()

	pool, err := e.loadActivePool(ctx, pair)
	if err != nil {
		return WithdrawResult{}, err
	}
	amountA, amountB, err := amm.WithdrawAmounts(lpAmount, pool.ReserveA, pool.ReserveB, pool.LPSupply)
	if err != nil {
		return WithdrawResult{}, err
	}
	if amountA < minA || amountB < minB {
		return WithdrawResult{}, errorsmod.Wrapf(amm.ErrSlippageExceeded, "withdraw %d/%d below minimum %d/%d", amountA, amountB, minA, minB)
	}
	now, err := e.now(ctx)
	if err != nil {
		return WithdrawResult{}, err
	}

	pool.ReserveA -= amountA
	pool.ReserveB -= amountB
	pool.LPSupply -= lpAmount
	pool.LastUpdateTime = now

	ops := []ledger.Op{
		ledger.Burn(pool.LPMint, caller, lpAmount),
		ledger.Transfer(pool.TokenA, pool.Vault, caller, amountA),
		ledger.Transfer(pool.TokenB, pool.Vault, caller, amountB),
	}

	ev := poolEvent(model.EventLiquidityRemoved, pool, caller, now)
	ev.AmountA = amountA
	ev.AmountB = amountB
	ev.Shares = lpAmount
	cs := storage.Changeset{Pools: []model.Pool{pool}, Events: []model.Event{ev}}
	if err := e.commit(ctx, "remove_liquidity", cs, ops); err != nil {
		return WithdrawResult{}, err
	}

	e.logger.Info("liquidity removed",
		zap.String("pair", pair.Hex()),
		zap.String("provider", caller.Hex()),
		zap.Uint64("shares", lpAmount),
		zap.Uint64("amount_a", amountA),
		zap.Uint64("amount_b", amountB),
	)
	return WithdrawResult{Burned: lpAmount, AmountA: amountA, AmountB: amountB, Pool: pool}, nil
}

// Pool returns the current state of a pool.
func (e *Engine) Pool(ctx context.Context, pair common.Hash) (model.Pool, error) {
	return e.loadPool(ctx, pair)
}

// FeeInfo returns the fee rates and accumulated fees of a pool.
func (e *Engine) FeeInfo(ctx context.Context, pair common.Hash) (FeeInfo, error) {
	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return FeeInfo{}, err
	}
	return FeeInfo{
		FeeRateBps:         pool.FeeRateBps,
		ProtocolFeeRateBps: pool.ProtocolFeeRateBps,
		FeesA:              pool.FeesA,
		FeesB:              pool.FeesB,
		ProtocolFeesA:      pool.ProtocolFeesA,
		ProtocolFeesB:      pool.ProtocolFeesB,
		HeldProtocolFeesA:  pool.HeldProtocolFeesA,
		HeldProtocolFeesB:  pool.HeldProtocolFeesB,
	}, nil
}

// Quote previews a swap of amountIn on side against current reserves.
func (e *Engine) Quote(ctx context.Context, pair common.Hash, side model.Side, amountIn uint64) (amm.Quote, error) {
	if !side.Valid() {
		return amm.Quote{}, errorsmod.Wrapf(amm.ErrInvalidAmount, "invalid side %d", side)
	}
	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return amm.Quote{}, err
	}
	rIn, rOut := pool.Reserves(side)
	return amm.QuoteSwap(amountIn, rIn, rOut, pool.FeeRateBps, e.cfg.QuoteSlippageBps)
}
