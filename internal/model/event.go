package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a committed engine operation.
type EventKind string

const (
	EventPoolCreated      EventKind = "pool_created"
	EventPoolPaused       EventKind = "pool_paused"
	EventLiquidityAdded   EventKind = "liquidity_added"
	EventLiquidityRemoved EventKind = "liquidity_removed"
	EventSwap             EventKind = "swap"
	EventOrderBookCreated EventKind = "order_book_created"
	EventLimitPlaced      EventKind = "limit_placed"
	EventLimitFilled      EventKind = "limit_filled"
	EventLimitCancelled   EventKind = "limit_cancelled"
	EventLimitExpired     EventKind = "limit_expired"
	EventLimitReclaimed   EventKind = "limit_reclaimed"
	EventDCACreated       EventKind = "dca_created"
	EventDCACycle         EventKind = "dca_cycle"
	EventDCACancelled     EventKind = "dca_cancelled"
	EventFeesCollected    EventKind = "protocol_fees_collected"
)

// Trade reports whether the event moved reserves through the pricing curve.
func (k EventKind) Trade() bool {
	return k == EventSwap || k == EventLimitFilled || k == EventDCACycle
}

// Event is the journal record of a committed operation. Reserves and supply
// are the pool state after the operation.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Pool        common.Hash    `json:"pool"`
	Order       string         `json:"order,omitempty"`
	Actor       common.Address `json:"actor"`
	Side        Side           `json:"side,omitempty"`
	AmountIn    uint64         `json:"amount_in,omitempty"`
	AmountOut   uint64         `json:"amount_out,omitempty"`
	AmountA     uint64         `json:"amount_a,omitempty"`
	AmountB     uint64         `json:"amount_b,omitempty"`
	Fee         uint64         `json:"fee,omitempty"`
	ProtocolFee uint64         `json:"protocol_fee,omitempty"`
	Shares      uint64         `json:"shares,omitempty"`
	ReserveA    uint64         `json:"reserve_a"`
	ReserveB    uint64         `json:"reserve_b"`
	LPSupply    uint64         `json:"lp_supply"`
	Timestamp   int64          `json:"timestamp"`
}
