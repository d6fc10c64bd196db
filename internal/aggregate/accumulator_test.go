package aggregate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/model"
)

func TestAccumulatorRejectsForeignEvents(t *testing.T) {
	acc := NewAccumulator(pair, 0, window)

	if err := acc.AddEvent(model.Event{Kind: model.EventSwap, Pool: common.HexToHash("0x02"), Side: model.SideBuy}); err == nil {
		t.Fatalf("expected error for other pool")
	}
	if err := acc.AddEvent(model.Event{Kind: model.EventSwap, Pool: pair, Side: model.SideBuy, Timestamp: window}); err == nil {
		t.Fatalf("expected error for event past window end")
	}
	if err := acc.AddEvent(model.Event{Kind: model.EventSwap, Pool: pair, Timestamp: 1}); err == nil {
		t.Fatalf("expected error for trade without side")
	}
}

func TestAccumulatorTracksLatestReserves(t *testing.T) {
	acc := NewAccumulator(pair, 0, window)

	events := []model.Event{
		{Kind: model.EventLiquidityAdded, Pool: pair, ReserveA: 10, ReserveB: 20, Timestamp: 0},
		{Kind: model.EventLiquidityRemoved, Pool: pair, ReserveA: 5, ReserveB: 10, Timestamp: 30},
		{Kind: model.EventPoolPaused, Pool: pair, ReserveA: 99, ReserveB: 99, Timestamp: 10},
	}
	for _, ev := range events {
		if err := acc.AddEvent(ev); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}
	if acc.ReserveA != 5 || acc.ReserveB != 10 {
		t.Fatalf("reserves: got %d/%d want 5/10", acc.ReserveA, acc.ReserveB)
	}
	if acc.SwapCount != 0 {
		t.Fatalf("swap count: got %d want 0", acc.SwapCount)
	}
}

func TestHelpers(t *testing.T) {
	if got := formatTokenAmount(big.NewInt(1_500_000), 6); got != "1.500000" {
		t.Fatalf("format: got %s", got)
	}
	if got := formatTokenAmount(big.NewInt(-25), 1); got != "-2.5" {
		t.Fatalf("format negative: got %s", got)
	}
	if rate := computeRate(big.NewInt(0), big.NewInt(10)); rate != nil {
		t.Fatalf("rate with zero fee: got %s", *rate)
	}
	if apr := computeAPR(big.NewInt(1), big.NewInt(1), big.NewInt(0), big.NewInt(10), window); apr != nil {
		t.Fatalf("apr with empty reserve: got %s", *apr)
	}
	if windowStart(7250, 3600) != 7200 {
		t.Fatalf("window start")
	}
}
