package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
)

func TestAddLiquidityInitialDepositLocksMinimum(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)

	res, err := f.eng.AddLiquidity(f.ctx, alice, f.pair, 1_000_000, 1_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-amm.MinimumLiquidity), res.Shares)
	require.Equal(t, uint64(1_000_000), res.Pool.LPSupply)

	pool := f.pool()
	require.Equal(t, res.Shares, f.led.Balance(pool.LPMint, alice))
	require.Equal(t, uint64(amm.MinimumLiquidity), f.led.Balance(pool.LPMint, LockedLiquidityAccount))
	require.Equal(t, funding-1_000_000, f.led.Balance(tokenA, alice))
	f.requireVaultMatchesReserves()
}

func TestAddLiquidityUnevenInitialDeposit(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)

	res, err := f.eng.AddLiquidity(f.ctx, alice, f.pair, 4_000_000, 1_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000), res.Pool.LPSupply)
	require.Equal(t, uint64(2_000_000-amm.MinimumLiquidity), res.Shares)
}

func TestAddLiquidityInitialDepositTooSmall(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)

	_, err := f.eng.AddLiquidity(f.ctx, alice, f.pair, 1000, 1000, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	_, err = f.eng.AddLiquidity(f.ctx, alice, f.pair, 0, 1000, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	require.False(t, f.pool().HasLiquidity())
	require.Equal(t, funding, f.led.Balance(tokenA, alice))
}

func TestAddLiquidityProportional(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(1_000_000, 1_000_000)

	_, err := f.eng.AddLiquidity(f.ctx, bob, f.pair, 1000, 2000, 1001)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	require.Equal(t, funding, f.led.Balance(tokenA, bob))

	res, err := f.eng.AddLiquidity(f.ctx, bob, f.pair, 1000, 2000, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), res.Shares)
	require.Equal(t, uint64(1_001_000), res.Pool.ReserveA)
	require.Equal(t, uint64(1_002_000), res.Pool.ReserveB)
	require.Equal(t, uint64(1_001_000), res.Pool.LPSupply)
	f.requireVaultMatchesReserves()
}

func TestRemoveLiquidityRoundTrip(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(1_000_000, 1_000_000)

	added, err := f.eng.AddLiquidity(f.ctx, bob, f.pair, 1000, 1000, 0)
	require.NoError(t, err)

	_, err = f.eng.RemoveLiquidity(f.ctx, bob, f.pair, added.Shares, 1001, 0)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	_, err = f.eng.RemoveLiquidity(f.ctx, bob, f.pair, 0, 0, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	res, err := f.eng.RemoveLiquidity(f.ctx, bob, f.pair, added.Shares, 0, 0)
	require.NoError(t, err)
	require.LessOrEqual(t, res.AmountA, uint64(1000))
	require.LessOrEqual(t, res.AmountB, uint64(1000))
	require.Equal(t, funding-1000+res.AmountA, f.led.Balance(tokenA, bob))
	require.Zero(t, f.led.Balance(f.pool().LPMint, bob))
	f.requireVaultMatchesReserves()
}

func TestRemoveLiquidityBeyondBalanceAborts(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(1_000_000, 1_000_000)
	before := f.pool()

	_, err := f.eng.RemoveLiquidity(f.ctx, bob, f.pair, 500, 0, 0)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, before, f.pool())
	f.requireVaultMatchesReserves()
}

func TestFeeInfoAndQuote(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)

	quote, err := f.eng.Quote(f.ctx, f.pair, model.SideBuy, 1000)
	require.NoError(t, err)
	require.Equal(t, amm.Quote{AmountIn: 1000, AmountOut: 493, FeeAmount: 3, PriceImpactBps: 140, MinimumReceived: 490}, quote)

	_, err = f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1000, 0)
	require.NoError(t, err)

	info, err := f.eng.FeeInfo(f.ctx, f.pair)
	require.NoError(t, err)
	require.Equal(t, FeeInfo{FeeRateBps: 30, FeesA: 3}, info)
}
