package aggregate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/model"
)

// Accumulator holds aggregate values for one pool window. Sums are kept in
// 256 bits so a busy window cannot overflow the per-trade uint64 amounts.
type Accumulator struct {
	Pool         common.Hash
	WindowStart  int64
	WindowEnd    int64
	SwapCount    uint64
	VolumeA      *uint256.Int
	VolumeB      *uint256.Int
	FeeA         *uint256.Int
	FeeB         *uint256.Int
	ProtocolFeeA *uint256.Int
	ProtocolFeeB *uint256.Int
	ReserveA     uint64
	ReserveB     uint64
	LastTS       int64
}

func NewAccumulator(pool common.Hash, windowStart, windowEnd int64) *Accumulator {
	return &Accumulator{
		Pool:         pool,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeA:      new(uint256.Int),
		VolumeB:      new(uint256.Int),
		FeeA:         new(uint256.Int),
		FeeB:         new(uint256.Int),
		ProtocolFeeA: new(uint256.Int),
		ProtocolFeeB: new(uint256.Int),
		LastTS:       windowStart - 1,
	}
}

// AddEvent folds ev into the window. Every event carries the pool reserves
// after it committed, so the latest one seen is the end-of-window TVL.
func (a *Accumulator) AddEvent(ev model.Event) error {
	if ev.Pool != a.Pool {
		return fmt.Errorf("event for pool %s added to %s", ev.Pool.Hex(), a.Pool.Hex())
	}
	if ev.Timestamp < a.WindowStart || ev.Timestamp >= a.WindowEnd {
		return fmt.Errorf("event at %d outside window [%d, %d)", ev.Timestamp, a.WindowStart, a.WindowEnd)
	}
	if ev.Timestamp >= a.LastTS {
		a.LastTS = ev.Timestamp
		a.ReserveA = ev.ReserveA
		a.ReserveB = ev.ReserveB
	}
	if !ev.Kind.Trade() {
		return nil
	}

	switch ev.Side {
	case model.SideBuy:
		addU64(a.VolumeA, ev.AmountIn)
		addU64(a.VolumeB, ev.AmountOut)
		addU64(a.FeeA, ev.Fee)
		addU64(a.ProtocolFeeA, ev.ProtocolFee)
	case model.SideSell:
		addU64(a.VolumeB, ev.AmountIn)
		addU64(a.VolumeA, ev.AmountOut)
		addU64(a.FeeB, ev.Fee)
		addU64(a.ProtocolFeeB, ev.ProtocolFee)
	default:
		return fmt.Errorf("trade event with invalid side %d", ev.Side)
	}
	a.SwapCount++
	return nil
}

// LPFees returns the fees that stayed in the reserves.
func (a *Accumulator) LPFees() (*uint256.Int, *uint256.Int) {
	return subFloor(a.FeeA, a.ProtocolFeeA), subFloor(a.FeeB, a.ProtocolFeeB)
}

func addU64(target *uint256.Int, v uint64) {
	target.Add(target, uint256.NewInt(v))
}

func subFloor(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}
