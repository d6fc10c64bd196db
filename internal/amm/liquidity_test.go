package amm

import (
	"errors"
	"testing"
)

func TestISqrt(t *testing.T) {
	cases := map[[2]uint64]uint64{
		{0, 0}:                     0,
		{1, 1}:                     1,
		{2, 2}:                     2,
		{3, 3}:                     3,
		{2, 1}:                     1,
		{10, 10}:                   10,
		{99, 1}:                    9,
		{100, 100}:                 100,
		{^uint64(0), ^uint64(0)}:   ^uint64(0),
		{1_000_000, 1_000_000}:     1_000_000,
		{4_000_000, 1_000_000}:     2_000_000,
		{1 << 32, (1 << 32) + 1}:   1 << 32,
		{123_456_789, 987_654_321}: 349_188_532,
	}
	for in, want := range cases {
		if got := ISqrt(in[0], in[1]); got != want {
			t.Fatalf("isqrt(%d*%d) = %d, want %d", in[0], in[1], got, want)
		}
	}
}

func TestInitialLPShares(t *testing.T) {
	shares, err := InitialLPShares(1_000_000, 1_000_000)
	if err != nil || shares != 1_000_000 {
		t.Fatalf("shares mismatch: %d (%v)", shares, err)
	}
	shares, err = InitialLPShares(4_000_000, 1_000_000)
	if err != nil || shares != 2_000_000 {
		t.Fatalf("shares mismatch: %d (%v)", shares, err)
	}
	if _, err := InitialLPShares(0, 1_000_000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestProportionalLPSharesUsesWeakerSide(t *testing.T) {
	// A side would mint 200, B side 100.
	shares, err := ProportionalLPShares(2_000, 1_000, 10_000, 10_000, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares != 100 {
		t.Fatalf("shares mismatch: %d", shares)
	}

	if _, err := ProportionalLPShares(1, 1, 10_000, 10_000, 1_000); !errors.Is(err, ErrLPTokenAmountTooSmall) {
		t.Fatalf("expected lp amount too small, got %v", err)
	}
	if _, err := ProportionalLPShares(1, 1, 0, 10_000, 1_000); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestWithdrawAmounts(t *testing.T) {
	a, b, err := WithdrawAmounts(250, 10_000, 4_000, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 2_500 || b != 1_000 {
		t.Fatalf("withdraw mismatch: %d %d", a, b)
	}

	if _, _, err := WithdrawAmounts(1, 10, 10_000, 1_000); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity for dust, got %v", err)
	}
	if _, _, err := WithdrawAmounts(0, 10, 10, 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, _, err := WithdrawAmounts(11, 10, 10, 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for burn above supply, got %v", err)
	}
}
