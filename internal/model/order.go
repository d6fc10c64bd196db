package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the direction of a trade. Buy spends token A for token B,
// Sell spends token B for token A.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide converts "buy" or "sell" into a Side.
func ParseSide(input string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("invalid side: %s", input)
	}
}

// Status is the lifecycle state of an order.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Active reports whether an order can still execute or be cancelled.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusPartiallyFilled
}

// LimitOrder rests until the pool price crosses LimitPrice.
type LimitOrder struct {
	ID                   string         `json:"id"`
	Owner                common.Address `json:"owner"`
	Pair                 common.Hash    `json:"pair"`
	OrderBook            common.Hash    `json:"order_book"`
	Side                 Side           `json:"side"`
	Status               Status         `json:"status"`
	AmountIn             uint64         `json:"amount_in"`
	AmountFilled         uint64         `json:"amount_filled"`
	AmountOut            uint64         `json:"amount_out"`
	LimitPrice           uint64         `json:"limit_price"`
	SlippageToleranceBps uint16         `json:"slippage_tolerance_bps"`
	Escrow               common.Address `json:"escrow"`
	EscrowOpen           bool           `json:"escrow_open"`
	CreatedAt            int64          `json:"created_at"`
	ExpiresAt            int64          `json:"expires_at"`
}

// Remaining is the escrowed input not yet filled.
func (o LimitOrder) Remaining() uint64 {
	return o.AmountIn - o.AmountFilled
}

// ExpiredAt reports whether the order is past its expiry at now.
func (o LimitOrder) ExpiredAt(now int64) bool {
	return o.ExpiresAt > 0 && now > o.ExpiresAt
}

// DCAOrder swaps AmountPerCycle every CycleFrequency seconds.
type DCAOrder struct {
	ID                   string         `json:"id"`
	Owner                common.Address `json:"owner"`
	Pair                 common.Hash    `json:"pair"`
	Side                 Side           `json:"side"`
	Status               Status         `json:"status"`
	AmountPerCycle       uint64         `json:"amount_per_cycle"`
	TotalCycles          uint16         `json:"total_cycles"`
	CyclesExecuted       uint16         `json:"cycles_executed"`
	CycleFrequency       int64          `json:"cycle_frequency"`
	LastExecution        int64          `json:"last_execution"`
	NextExecution        int64          `json:"next_execution"`
	MinPrice             uint64         `json:"min_price"`
	MaxPrice             uint64         `json:"max_price"`
	SlippageToleranceBps uint16         `json:"slippage_tolerance_bps"`
	TotalAmountIn        uint64         `json:"total_amount_in"`
	TotalAmountOut       uint64         `json:"total_amount_out"`
	Escrow               common.Address `json:"escrow"`
	EscrowOpen           bool           `json:"escrow_open"`
	CreatedAt            int64          `json:"created_at"`
}

// RemainingCycles is the number of cycles still to run.
func (o DCAOrder) RemainingCycles() uint16 {
	if o.CyclesExecuted >= o.TotalCycles {
		return 0
	}
	return o.TotalCycles - o.CyclesExecuted
}

// Ready reports whether the next cycle is due at now.
func (o DCAOrder) Ready(now int64) bool {
	return now >= o.NextExecution
}

// InRange reports whether price satisfies the optional bounds.
func (o DCAOrder) InRange(price uint64) bool {
	if o.MinPrice > 0 && price < o.MinPrice {
		return false
	}
	if o.MaxPrice > 0 && price > o.MaxPrice {
		return false
	}
	return true
}

// OrderBook aggregates open limit orders of one pair.
type OrderBook struct {
	Pair            common.Hash `json:"pair"`
	BuyOrdersCount  uint64      `json:"buy_orders_count"`
	SellOrdersCount uint64      `json:"sell_orders_count"`
	TotalVolume     uint64      `json:"total_volume"`
}
