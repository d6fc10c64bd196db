package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

const price1 = uint64(amm.PriceScale)

func TestPlaceLimitOrderValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0)
	f.seed(1_000_000, 1_000_000)

	_, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, price1, 500, 0)
	require.ErrorIs(t, err, amm.ErrOrderBookNotFound)

	f.withBook()
	_, err = f.eng.InitOrderBook(f.ctx, admin, f.pair)
	require.ErrorIs(t, err, amm.ErrOrderBookExists)

	_, err = f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 0, price1, 500, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 0, 500, 0)
	require.ErrorIs(t, err, amm.ErrInvalidLimitPrice)
	_, err = f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, price1, 10_001, 0)
	require.ErrorIs(t, err, amm.ErrInvalidSlippage)
	_, err = f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, price1, 500, startTime)
	require.ErrorIs(t, err, amm.ErrInvalidExpirationTime)
	_, err = f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.Side(9), 1000, price1, 500, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Equal(t, model.OrderBook{Pair: f.pair}, book)
}

func TestPlaceLimitOrderEscrowsInput(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideSell, 1000, 2*price1, 500, startTime+3600)
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, order.Status)
	require.True(t, order.EscrowOpen)
	require.Equal(t, uint64(1000), f.led.Balance(tokenB, order.Escrow))
	require.Equal(t, funding-1000, f.led.Balance(tokenB, alice))

	owner, ok := f.led.EscrowOwner(order.Escrow)
	require.True(t, ok)
	require.Equal(t, alice, owner)

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Equal(t, uint64(1), book.SellOrdersCount)
	require.Zero(t, book.BuyOrdersCount)
}

func TestExecuteLimitOrderPriceNotReached(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideSell, 1000, 2*price1, 500, 0)
	require.NoError(t, err)

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrLimitPriceNotReached)
	require.True(t, amm.IsRetryable(err))

	got, err := f.eng.LimitOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, got.Status)
	require.Zero(t, got.AmountFilled)
	require.Equal(t, uint64(1_000_000), f.pool().ReserveA)
}

func TestExecuteLimitOrderFullFill(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)

	res, err := f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), res.Filled)
	require.Equal(t, uint64(996), res.AmountOut)
	require.Equal(t, model.StatusFilled, res.Order.Status)
	require.False(t, res.Order.EscrowOpen)

	require.Equal(t, funding+996, f.led.Balance(tokenB, alice))
	require.Zero(t, f.led.Balance(tokenA, order.Escrow))
	_, ok := f.led.EscrowOwner(order.Escrow)
	require.False(t, ok)

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Zero(t, book.BuyOrdersCount)
	require.Equal(t, uint64(1000), book.TotalVolume)
	f.requireVaultMatchesReserves()

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrOrderAlreadyFilled)
	_, err = f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, amm.ErrOrderAlreadyFilled)
}

func TestExecuteLimitOrderFullOrNothingByDefault(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 400)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	got, err := f.eng.LimitOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, got.Status)
	require.Zero(t, got.AmountFilled)

	res, err := f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 1000)
	require.NoError(t, err)
	require.Equal(t, model.StatusFilled, res.Order.Status)
}

func TestExecuteLimitOrderPartialFills(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowPartialFills = true
	f := newFixture(t, cfg, 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 1001)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	res, err := f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 400)
	require.NoError(t, err)
	require.Equal(t, uint64(398), res.AmountOut)
	require.Equal(t, model.StatusPartiallyFilled, res.Order.Status)
	require.Equal(t, uint64(600), res.Order.Remaining())
	require.Equal(t, uint64(600), f.led.Balance(tokenA, order.Escrow))

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Equal(t, uint64(1), book.BuyOrdersCount)

	res, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, model.StatusFilled, res.Order.Status)
	require.Equal(t, uint64(1000), res.Order.AmountFilled)
	require.Equal(t, 398+res.AmountOut, res.Order.AmountOut)

	book, err = f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Zero(t, book.BuyOrdersCount)
	require.Equal(t, uint64(1000), book.TotalVolume)
	f.requireVaultMatchesReserves()
}

func TestCancelPartiallyFilledLimitOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowPartialFills = true
	f := newFixture(t, cfg, 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 250)
	require.NoError(t, err)

	balance := f.led.Balance(tokenA, alice)
	got, err := f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Status)
	require.Equal(t, balance+750, f.led.Balance(tokenA, alice))
}

func TestCancelLimitOrder(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideSell, 1000, 2*price1, 500, 0)
	require.NoError(t, err)

	_, err = f.eng.CancelLimitOrder(f.ctx, bob, order.ID)
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	got, err := f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Status)
	require.Equal(t, funding, f.led.Balance(tokenB, alice))
	_, ok := f.led.EscrowOwner(order.Escrow)
	require.False(t, ok)

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Zero(t, book.SellOrdersCount)

	_, err = f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, amm.ErrOrderAlreadyCancelled)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrOrderAlreadyCancelled)
}

func TestLimitOrderExpiryAndReclaim(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 1, 500, startTime+100)
	require.NoError(t, err)

	f.clk.Advance(100)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrLimitPriceNotReached, "expiry is exclusive of expiresAt")

	f.clk.Advance(1)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrOrderExpired)

	got, err := f.eng.LimitOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusExpired, got.Status)
	require.True(t, got.EscrowOpen)
	require.Equal(t, uint64(1000), f.led.Balance(tokenA, order.Escrow))

	book, err := f.eng.OrderBook(f.ctx, f.pair)
	require.NoError(t, err)
	require.Zero(t, book.BuyOrdersCount)

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrOrderExpired)
	_, err = f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, amm.ErrOrderExpired)

	_, err = f.eng.ReclaimExpiredLimitOrder(f.ctx, bob, order.ID)
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	got, err = f.eng.ReclaimExpiredLimitOrder(f.ctx, alice, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusExpired, got.Status)
	require.False(t, got.EscrowOpen)
	require.Equal(t, funding, f.led.Balance(tokenA, alice))

	_, err = f.eng.ReclaimExpiredLimitOrder(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, amm.ErrInvalidOrderStatus)
}

func TestReclaimRejectsLiveOrder(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 1, 500, 0)
	require.NoError(t, err)

	_, err = f.eng.ReclaimExpiredLimitOrder(f.ctx, alice, order.ID)
	require.ErrorIs(t, err, amm.ErrInvalidOrderStatus)
}

func TestExecuteLimitOrderOnPausedPool(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)
	require.NoError(t, f.eng.SetPaused(f.ctx, admin, f.pair, true))

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrPoolPaused)

	_, err = f.eng.CancelLimitOrder(f.ctx, alice, order.ID)
	require.NoError(t, err)
}

func TestExecuteLimitOrderSlippageTolerance(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(1_000_000, 1_000_000)

	order, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 10, 0)
	require.NoError(t, err)

	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, order.ID, 0)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	got, err := f.eng.LimitOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, got.Status)
}

// Prices are token A per token B on both sides: a 2_000_000/1_000_000 pool
// quotes 2*price1 to buyers and sellers alike.
func TestOrderPricesAreAPerB(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 0).withBook()
	f.seed(2_000_000, 1_000_000)

	price, err := amm.SpotPrice(f.pool().ReserveA, f.pool().ReserveB)
	require.NoError(t, err)
	require.Equal(t, 2*price1, price)

	// A buyer asking for B at one A or less waits; B currently costs two.
	cheap, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, price1, 500, 0)
	require.NoError(t, err)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, cheap.ID, 0)
	require.ErrorIs(t, err, amm.ErrLimitPriceNotReached)

	buy, err := f.eng.PlaceLimitOrder(f.ctx, alice, f.pair, model.SideBuy, 1000, 2*price1, 500, 0)
	require.NoError(t, err)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, buy.ID, 0)
	require.NoError(t, err)

	sell, err := f.eng.PlaceLimitOrder(f.ctx, bob, f.pair, model.SideSell, 500, 2*price1, 500, 0)
	require.NoError(t, err)
	_, err = f.eng.ExecuteLimitOrder(f.ctx, executor, sell.ID, 0)
	require.NoError(t, err)

	req := DCARequest{Pair: f.pair, Side: model.SideBuy, AmountPerCycle: 100, TotalCycles: 2, CycleFrequency: 60, SlippageBps: 500}
	capped := req
	capped.MaxPrice = price1
	below, err := f.eng.CreateDCAOrder(f.ctx, alice, capped)
	require.NoError(t, err)
	banded := req
	banded.MinPrice, banded.MaxPrice = 3*price1/2, 5*price1/2
	within, err := f.eng.CreateDCAOrder(f.ctx, alice, banded)
	require.NoError(t, err)

	f.clk.Advance(60)
	_, err = f.eng.ExecuteDCACycle(f.ctx, executor, below.ID)
	require.ErrorIs(t, err, amm.ErrPriceOutOfRange)
	_, err = f.eng.ExecuteDCACycle(f.ctx, executor, within.ID)
	require.NoError(t, err)
}
