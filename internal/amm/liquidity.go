package amm

// MinimumLiquidity is the share floor locked forever by the first deposit.
const MinimumLiquidity = 1000

// InitialLPShares returns the geometric mean of the first deposit.
func InitialLPShares(amountA, amountB uint64) (uint64, error) {
	shares := ISqrt(amountA, amountB)
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	return shares, nil
}

// ProportionalLPShares mints against the weaker of the two deposit ratios.
func ProportionalLPShares(amountA, amountB, reserveA, reserveB, lpSupply uint64) (uint64, error) {
	if reserveA == 0 || reserveB == 0 || lpSupply == 0 {
		return 0, ErrInsufficientLiquidity
	}
	fromA, err := MulDiv(amountA, lpSupply, reserveA)
	if err != nil {
		return 0, err
	}
	fromB, err := MulDiv(amountB, lpSupply, reserveB)
	if err != nil {
		return 0, err
	}

	shares := min(fromA, fromB)
	if shares == 0 {
		return 0, ErrLPTokenAmountTooSmall
	}
	return shares, nil
}

// WithdrawAmounts returns the reserves claimed by burning lpAmount shares.
func WithdrawAmounts(lpAmount, reserveA, reserveB, lpSupply uint64) (amountA, amountB uint64, err error) {
	if lpAmount == 0 || lpAmount > lpSupply {
		return 0, 0, ErrInvalidAmount
	}
	amountA, err = MulDiv(lpAmount, reserveA, lpSupply)
	if err != nil {
		return 0, 0, err
	}
	amountB, err = MulDiv(lpAmount, reserveB, lpSupply)
	if err != nil {
		return 0, 0, err
	}
	if amountA == 0 || amountB == 0 {
		return 0, 0, ErrInsufficientLiquidity
	}
	return amountA, amountB, nil
}
