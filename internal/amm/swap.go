package amm

import (
	"github.com/holiman/uint256"
)

// DefaultQuoteSlippageBps is the slippage applied to MinimumReceived in quotes.
const DefaultQuoteSlippageBps = 50

// Quote is a read-only preview of a swap.
type Quote struct {
	AmountIn        uint64 `json:"amount_in"`
	AmountOut       uint64 `json:"amount_out"`
	FeeAmount       uint64 `json:"fee_amount"`
	PriceImpactBps  uint16 `json:"price_impact_bps"`
	MinimumReceived uint64 `json:"minimum_received"`
}

// SwapOutput prices a constant-product swap with the fee taken on input.
//
// Both divisions floor, which rounds every swap in favour of the pool.
func SwapOutput(amountIn, reserveIn, reserveOut uint64, feeRateBps uint16) (amountOut, feeAmount uint64, err error) {
	if amountIn == 0 || feeRateBps > BasisPoints {
		return 0, 0, ErrInvalidAmount
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, ErrInsufficientLiquidity
	}

	feeAmount, err = MulDiv(amountIn, uint64(feeRateBps), BasisPoints)
	if err != nil {
		return 0, 0, err
	}
	net := amountIn - feeAmount

	numerator := new(uint256.Int).Mul(uint256.NewInt(reserveOut), uint256.NewInt(net))
	denominator := new(uint256.Int).Add(uint256.NewInt(reserveIn), uint256.NewInt(net))
	out := numerator.Div(numerator, denominator)
	if !out.IsUint64() {
		return 0, 0, ErrMathOverflow
	}

	amountOut = out.Uint64()
	if amountOut == 0 {
		return 0, 0, ErrZeroOutput
	}
	if amountOut >= reserveOut {
		return 0, 0, ErrInsufficientLiquidity
	}
	return amountOut, feeAmount, nil
}

// PriceImpactBps measures how far amountOut falls short of the output at the
// pre-trade marginal price, in basis points.
func PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut uint64) (uint16, error) {
	if reserveIn == 0 {
		return 0, ErrInsufficientLiquidity
	}
	expected := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(reserveOut))
	expected.Div(expected, uint256.NewInt(reserveIn))
	if expected.IsZero() {
		return 0, nil
	}

	actual := uint256.NewInt(amountOut)
	if !actual.Lt(expected) {
		return 0, nil
	}
	shortfall := new(uint256.Int).Sub(expected, actual)
	shortfall.Mul(shortfall, uint256.NewInt(BasisPoints))
	shortfall.Div(shortfall, expected)
	return uint16(shortfall.Uint64()), nil
}

// SpotPrice returns the price of token B quoted in token A, scaled by PriceScale.
func SpotPrice(reserveA, reserveB uint64) (uint64, error) {
	if reserveA == 0 || reserveB == 0 {
		return 0, ErrInsufficientLiquidity
	}
	return MulDiv(reserveA, PriceScale, reserveB)
}

// ProtocolFee returns the protocol's cut of a trading fee.
func ProtocolFee(feeAmount uint64, protocolFeeRateBps uint16) (uint64, error) {
	if protocolFeeRateBps > BasisPoints {
		return 0, ErrInvalidFeeRate
	}
	return MulDiv(feeAmount, uint64(protocolFeeRateBps), BasisPoints)
}

// MinimumReceived applies a slippage allowance to an expected output.
func MinimumReceived(amountOut uint64, slippageBps uint16) (uint64, error) {
	if slippageBps > BasisPoints {
		return 0, ErrInvalidSlippage
	}
	return MulDiv(amountOut, uint64(BasisPoints-slippageBps), BasisPoints)
}

// QuoteSwap previews a swap without touching any state.
func QuoteSwap(amountIn, reserveIn, reserveOut uint64, feeRateBps, slippageBps uint16) (Quote, error) {
	amountOut, fee, err := SwapOutput(amountIn, reserveIn, reserveOut, feeRateBps)
	if err != nil {
		return Quote{}, err
	}
	impact, err := PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut)
	if err != nil {
		return Quote{}, err
	}
	minReceived, err := MinimumReceived(amountOut, slippageBps)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		FeeAmount:       fee,
		PriceImpactBps:  impact,
		MinimumReceived: minReceived,
	}, nil
}
