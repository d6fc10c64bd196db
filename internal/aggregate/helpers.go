package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

var yearSeconds = big.NewRat(int64(365*24*time.Hour/time.Second), 1)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func computeRate(fee, tvl *big.Int) *string {
	if fee == nil || fee.Sign() == 0 || tvl == nil || tvl.Sign() == 0 {
		return nil
	}
	rate := new(big.Rat).SetFrac(fee, tvl).FloatString(ratioScale)
	return &rate
}

// computeAPR annualises the LP yield of one window. At the pool price the
// two reserves are worth the same, so the yield on the whole position is the
// mean of the per-token fee/reserve ratios.
func computeAPR(feeA, feeB, tvlA, tvlB *big.Int, windowSeconds int64) *string {
	if windowSeconds <= 0 || tvlA == nil || tvlB == nil || tvlA.Sign() == 0 || tvlB.Sign() == 0 {
		return nil
	}
	yield := new(big.Rat).SetFrac(feeA, tvlA)
	yield.Add(yield, new(big.Rat).SetFrac(feeB, tvlB))
	yield.Quo(yield, big.NewRat(2, 1))

	apr := yield.Mul(yield, yearSeconds)
	apr.Quo(apr, big.NewRat(windowSeconds, 1))
	val := apr.FloatString(ratioScale)
	return &val
}
