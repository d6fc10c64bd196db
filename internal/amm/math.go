package amm

import (
	"github.com/holiman/uint256"
)

const (
	// BasisPoints is 100% expressed in basis points.
	BasisPoints = 10_000
	// PriceScale is the fixed-point scale of prices (1e9).
	PriceScale = 1_000_000_000
)

var one = uint256.NewInt(1)

// MulDiv returns floor(a*b/c) computed with a 256-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrMathError
	}
	z := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	z.Div(z, uint256.NewInt(c))
	if !z.IsUint64() {
		return 0, ErrMathOverflow
	}
	return z.Uint64(), nil
}

// CheckedAdd returns a+b or ErrMathOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrMathError when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathError
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrMathOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	z := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	if !z.IsUint64() {
		return 0, ErrMathOverflow
	}
	return z.Uint64(), nil
}

// SaturatingAdd returns a+b clamped to the maximum uint64.
func SaturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// SaturatingSub returns a-b clamped at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// sqrt computes floor(sqrt(n)) by Newton iteration.
func sqrt(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return new(uint256.Int)
	}
	x := new(uint256.Int).Set(n)
	y := new(uint256.Int).Add(x, one)
	y.Rsh(y, 1)
	for y.Lt(x) {
		x.Set(y)
		q := new(uint256.Int).Div(n, x)
		y.Add(x, q)
		y.Rsh(y, 1)
	}
	return x
}

// ISqrt returns floor(sqrt(a*b)) without floating point.
func ISqrt(a, b uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	// sqrt of a product of two uint64 always fits in uint64.
	return sqrt(product).Uint64()
}
