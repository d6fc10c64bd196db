package amm

import (
	"errors"
	"testing"
)

func TestSwapOutputReferencePool(t *testing.T) {
	out, fee, err := SwapOutput(1000, 100_000, 50_000, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 3 {
		t.Fatalf("fee mismatch: %d", fee)
	}
	// 50000 * 997 / 100997
	if out != 493 {
		t.Fatalf("amount out mismatch: %d", out)
	}
	if out == 0 || out >= 50_000 {
		t.Fatalf("amount out out of bounds: %d", out)
	}
}

func TestSwapOutputLargeTrade(t *testing.T) {
	// fee 300, net 99700, new reserve out 909338
	out, fee, err := SwapOutput(100_000, 1_000_000, 1_000_000, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 300 {
		t.Fatalf("fee mismatch: %d", fee)
	}
	if out != 90_661 {
		t.Fatalf("amount out mismatch: %d", out)
	}
}

func TestSwapOutputIsPure(t *testing.T) {
	out1, fee1, err1 := SwapOutput(12_345, 987_654, 456_789, 25)
	out2, fee2, err2 := SwapOutput(12_345, 987_654, 456_789, 25)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if out1 != out2 || fee1 != fee2 {
		t.Fatalf("repeated call diverged: (%d,%d) != (%d,%d)", out1, fee1, out2, fee2)
	}
}

func TestSwapOutputErrors(t *testing.T) {
	cases := []struct {
		name       string
		amountIn   uint64
		reserveIn  uint64
		reserveOut uint64
		fee        uint16
		want       error
	}{
		{"zero amount", 0, 100, 100, 30, ErrInvalidAmount},
		{"fee above 100%", 10, 100, 100, 10_001, ErrInvalidAmount},
		{"empty reserve in", 10, 0, 100, 30, ErrInsufficientLiquidity},
		{"empty reserve out", 10, 100, 0, 30, ErrInsufficientLiquidity},
		{"both empty", 10, 0, 0, 30, ErrInsufficientLiquidity},
		{"dust output", 1, 1_000_000, 1_000, 30, ErrZeroOutput},
		{"full fee", 1_000, 1_000, 1_000, 10_000, ErrZeroOutput},
	}

	for _, tc := range cases {
		_, _, err := SwapOutput(tc.amountIn, tc.reserveIn, tc.reserveOut, tc.fee)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSwapOutputNeverDrainsReserve(t *testing.T) {
	out, _, err := SwapOutput(^uint64(0), 1, 1_000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 999 {
		t.Fatalf("expected output to stop one unit short of the reserve, got %d", out)
	}
}

func TestPriceImpactBps(t *testing.T) {
	impact, err := PriceImpactBps(1000, 493, 100_000, 50_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// expected 500, shortfall 7
	if impact != 140 {
		t.Fatalf("impact mismatch: %d", impact)
	}

	impact, err = PriceImpactBps(1, 0, 1_000_000, 10)
	if err != nil || impact != 0 {
		t.Fatalf("expected zero impact when expected output rounds to zero, got %d (%v)", impact, err)
	}

	impact, err = PriceImpactBps(1000, 600, 100_000, 50_000)
	if err != nil || impact != 0 {
		t.Fatalf("expected zero impact for favourable output, got %d (%v)", impact, err)
	}

	if _, err := PriceImpactBps(1000, 10, 0, 50_000); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestSpotPrice(t *testing.T) {
	price, err := SpotPrice(2_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 2*PriceScale {
		t.Fatalf("price mismatch: %d", price)
	}

	if _, err := SpotPrice(^uint64(0), 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := SpotPrice(10, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestQuoteSwap(t *testing.T) {
	q, err := QuoteSwap(1000, 100_000, 50_000, 30, DefaultQuoteSlippageBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.AmountOut != 493 || q.FeeAmount != 3 || q.PriceImpactBps != 140 {
		t.Fatalf("quote mismatch: %+v", q)
	}
	// 493 * 9950 / 10000
	if q.MinimumReceived != 490 {
		t.Fatalf("minimum received mismatch: %d", q.MinimumReceived)
	}
}

func TestProtocolFee(t *testing.T) {
	fee, err := ProtocolFee(300, 2_000)
	if err != nil || fee != 60 {
		t.Fatalf("protocol fee mismatch: %d (%v)", fee, err)
	}
	if _, err := ProtocolFee(300, 10_001); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected invalid fee rate, got %v", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	if _, err := MulDiv(^uint64(0), ^uint64(0), 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, ErrMathError) {
		t.Fatalf("expected math error, got %v", err)
	}
	got, err := MulDiv(^uint64(0), ^uint64(0), ^uint64(0))
	if err != nil || got != ^uint64(0) {
		t.Fatalf("wide intermediate mismatch: %d (%v)", got, err)
	}
}

func TestRetryableClassification(t *testing.T) {
	for _, err := range []error{ErrLimitPriceNotReached, ErrDCANotReady, ErrPriceOutOfRange} {
		if !IsRetryable(err) {
			t.Fatalf("%v should be retryable", err)
		}
	}
	for _, err := range []error{ErrSlippageExceeded, ErrOrderExpired, ErrDCACompleted, errors.New("boom")} {
		if IsRetryable(err) {
			t.Fatalf("%v should not be retryable", err)
		}
	}
	if Code(ErrPoolPaused) != 19 {
		t.Fatalf("code mismatch: %d", Code(ErrPoolPaused))
	}
	if Code(errors.New("plain")) != 0 {
		t.Fatalf("plain errors carry no code")
	}
}
