package engine

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ammcore/internal/amm"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
)

func TestSwapReferencePool(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)
	kBefore := uint64(100_000) * 50_000

	res, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), res.Fee)
	require.Equal(t, uint64(493), res.AmountOut)
	require.Greater(t, res.AmountOut, uint64(0))
	require.Less(t, res.AmountOut, uint64(50_000))
	require.Equal(t, uint16(140), res.PriceImpactBps)

	pool := f.pool()
	require.Equal(t, uint64(101_000), pool.ReserveA)
	require.Equal(t, uint64(49_507), pool.ReserveB)
	require.GreaterOrEqual(t, pool.ReserveA*pool.ReserveB, kBefore)
	require.Equal(t, uint64(3), pool.FeesA)
	require.Equal(t, funding-1000, f.led.Balance(tokenA, alice))
	require.Equal(t, funding+493, f.led.Balance(tokenB, alice))
	f.requireVaultMatchesReserves()
}

func TestSwapSellSide(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(50_000, 100_000)

	res, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideSell, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(493), res.AmountOut)

	pool := f.pool()
	require.Equal(t, uint64(49_507), pool.ReserveA)
	require.Equal(t, uint64(101_000), pool.ReserveB)
	require.Equal(t, uint64(3), pool.FeesB)
	require.Equal(t, funding+493, f.led.Balance(tokenA, alice))
	f.requireVaultMatchesReserves()
}

func TestSwapMinimumOutput(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)

	_, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1000, 494)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	require.Equal(t, uint64(100_000), f.pool().ReserveA)

	_, err = f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1000, 493)
	require.NoError(t, err)
}

func TestSwapRejectsZeroAndEmptyPool(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)

	_, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1000, 0)
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)

	f.seed(100_000, 50_000)
	_, err = f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 0, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	_, err = f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 1, 0)
	require.ErrorIs(t, err, amm.ErrZeroOutput)
}

func TestSwapPriceImpactCeiling(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)

	_, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 10_000, 0)
	require.ErrorIs(t, err, amm.ErrPriceImpactTooHigh)
	require.Equal(t, uint64(100_000), f.pool().ReserveA)

	cfg := DefaultConfig()
	cfg.MaxPriceImpactBps = amm.BasisPoints
	g := newFixture(t, cfg, 30, 0)
	g.seed(100_000, 50_000)

	res, err := g.eng.Swap(g.ctx, alice, g.pair, model.SideBuy, 10_000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(4533), res.AmountOut)
	require.Equal(t, uint16(934), res.PriceImpactBps)
}

func TestSwapProtocolFee(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtocolFeeRecipient = treasury
	f := newFixture(t, cfg, 30, 2000)
	f.seed(100_000, 50_000)

	res, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 2000, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(6), res.Fee)
	require.Equal(t, uint64(1), res.ProtocolFee)
	require.Equal(t, uint64(977), res.AmountOut)

	pool := f.pool()
	require.Equal(t, uint64(101_999), pool.ReserveA)
	require.Equal(t, uint64(49_023), pool.ReserveB)
	require.Equal(t, uint64(6), pool.FeesA)
	require.Equal(t, uint64(1), pool.ProtocolFeesA)
	require.Equal(t, uint64(1), f.led.Balance(tokenA, treasury))
	f.requireVaultMatchesReserves()
}

func TestSwapProtocolFeeWithoutRecipientStaysInVault(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 2000)
	f.seed(100_000, 50_000)

	_, err := f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 2000, 0)
	require.NoError(t, err)

	pool := f.pool()
	require.Equal(t, uint64(101_999), pool.ReserveA)
	require.Equal(t, pool.ProtocolFeesA, pool.HeldProtocolFeesA)
	require.Equal(t, pool.ReserveA+pool.HeldProtocolFeesA, f.led.Balance(tokenA, pool.Vault))
}

func TestCollectProtocolFees(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 2000)
	f.seed(100_000, 50_000)

	_, _, err := f.eng.CollectProtocolFees(f.ctx, admin, f.pair, treasury)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	_, err = f.eng.Swap(f.ctx, alice, f.pair, model.SideBuy, 2000, 0)
	require.NoError(t, err)
	_, err = f.eng.Swap(f.ctx, bob, f.pair, model.SideSell, 2000, 0)
	require.NoError(t, err)
	held := f.pool()
	require.NotZero(t, held.HeldProtocolFeesA)
	require.NotZero(t, held.HeldProtocolFeesB)

	_, _, err = f.eng.CollectProtocolFees(f.ctx, alice, f.pair, alice)
	require.ErrorIs(t, err, amm.ErrUnauthorized)
	_, _, err = f.eng.CollectProtocolFees(f.ctx, admin, f.pair, common.Address{})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	require.NoError(t, f.eng.SetPaused(f.ctx, admin, f.pair, true))
	amountA, amountB, err := f.eng.CollectProtocolFees(f.ctx, admin, f.pair, treasury)
	require.NoError(t, err)
	require.Equal(t, held.HeldProtocolFeesA, amountA)
	require.Equal(t, held.HeldProtocolFeesB, amountB)
	require.Equal(t, amountA, f.led.Balance(tokenA, treasury))
	require.Equal(t, amountB, f.led.Balance(tokenB, treasury))

	pool := f.pool()
	require.Zero(t, pool.HeldProtocolFeesA)
	require.Zero(t, pool.HeldProtocolFeesB)
	require.Equal(t, held.ProtocolFeesA, pool.ProtocolFeesA)
	require.Equal(t, held.ReserveA, pool.ReserveA)
	f.requireVaultMatchesReserves()

	events := f.store.Events()
	last := events[len(events)-1]
	require.Equal(t, model.EventFeesCollected, last.Kind)
	require.Equal(t, amountA, last.AmountA)
	require.Equal(t, amountB, last.AmountB)
}

func TestSwapInsufficientFundsAborts(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)
	before := f.pool()

	_, err := f.eng.Swap(f.ctx, carol, f.pair, model.SideBuy, 1000, 0)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, before, f.pool())
	require.Zero(t, f.led.Balance(tokenB, carol))
	f.requireVaultMatchesReserves()
}

func TestExecuteMarketOrderSlippage(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(100_000, 50_000)

	_, err := f.eng.ExecuteMarketOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 0, 100)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	_, err = f.eng.ExecuteMarketOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 0, 10_001)
	require.ErrorIs(t, err, amm.ErrInvalidSlippage)

	res, err := f.eng.ExecuteMarketOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 0, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(493), res.AmountOut)
}

func TestSwapSequenceKeepsInvariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPriceImpactBps = amm.BasisPoints

	rapid.Check(t, func(rt *rapid.T) {
		feeBps := uint16(rapid.IntRange(0, 1000).Draw(rt, "fee"))
		f := newFixture(rt, cfg, feeBps, 0)
		f.seed(rapid.Uint64Range(10_000, 10_000_000).Draw(rt, "reserveA"), rapid.Uint64Range(10_000, 10_000_000).Draw(rt, "reserveB"))

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			before := f.pool()
			side := model.SideBuy
			if rapid.Bool().Draw(rt, "sell") {
				side = model.SideSell
			}
			amount := rapid.Uint64Range(1, 1_000_000).Draw(rt, "amount")
			if _, err := f.eng.Swap(f.ctx, alice, f.pair, side, amount, 0); err != nil {
				require.Equal(rt, before, f.pool())
				continue
			}
			after := f.pool()
			kBefore := new(big.Int).Mul(new(big.Int).SetUint64(before.ReserveA), new(big.Int).SetUint64(before.ReserveB))
			kAfter := new(big.Int).Mul(new(big.Int).SetUint64(after.ReserveA), new(big.Int).SetUint64(after.ReserveB))
			require.True(rt, kAfter.Cmp(kBefore) >= 0, "k decreased: %s -> %s", kBefore, kAfter)
			require.Positive(rt, after.ReserveA)
			require.Positive(rt, after.ReserveB)
		}
		f.requireVaultMatchesReserves()
	})
}
