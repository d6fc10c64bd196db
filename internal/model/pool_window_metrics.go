package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolWindowMetrics stores aggregated trading metrics for a pool window.
// Amount fields are decimal strings already scaled by token decimals.
type PoolWindowMetrics struct {
	Pool           common.Hash
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	ProtocolFeeA   string
	ProtocolFeeB   string
	FeeRateA       *string
	FeeRateB       *string
	TVLA           *string
	TVLB           *string
	APR            *string
	TVLMethod      string
}
