package amm

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace is the registration namespace for engine errors.
const Codespace = "amm"

// Engine sentinel errors.
var (
	ErrInvalidAmount         = errorsmod.Register(Codespace, 2, "invalid amount")
	ErrInsufficientLiquidity = errorsmod.Register(Codespace, 3, "insufficient liquidity")
	ErrZeroOutput            = errorsmod.Register(Codespace, 4, "zero output amount")
	ErrSlippageExceeded      = errorsmod.Register(Codespace, 5, "slippage exceeded")
	ErrPriceImpactTooHigh    = errorsmod.Register(Codespace, 6, "price impact too high")
	ErrMathOverflow          = errorsmod.Register(Codespace, 7, "math overflow")
	ErrMathError             = errorsmod.Register(Codespace, 8, "math error")
	ErrLPTokenAmountTooSmall = errorsmod.Register(Codespace, 9, "lp token amount too small")
	ErrUnauthorized          = errorsmod.Register(Codespace, 10, "unauthorized")
	ErrInvalidOrderStatus    = errorsmod.Register(Codespace, 11, "invalid order status")
	ErrOrderAlreadyFilled    = errorsmod.Register(Codespace, 12, "order already filled")
	ErrOrderAlreadyCancelled = errorsmod.Register(Codespace, 13, "order already cancelled")
	ErrOrderExpired          = errorsmod.Register(Codespace, 14, "order expired")
	ErrLimitPriceNotReached  = errorsmod.Register(Codespace, 15, "limit price not reached")
	ErrDCANotReady           = errorsmod.Register(Codespace, 16, "dca order not ready for execution")
	ErrDCACompleted          = errorsmod.Register(Codespace, 17, "dca order completed")
	ErrPriceOutOfRange       = errorsmod.Register(Codespace, 18, "price out of acceptable range")
	ErrPoolPaused            = errorsmod.Register(Codespace, 19, "pool is paused")
	ErrInvalidFeeRate        = errorsmod.Register(Codespace, 20, "invalid fee rate")
	ErrInvalidLimitPrice     = errorsmod.Register(Codespace, 21, "invalid limit price")
	ErrInvalidSlippage       = errorsmod.Register(Codespace, 22, "invalid slippage tolerance")
	ErrInvalidExpirationTime = errorsmod.Register(Codespace, 23, "invalid expiration time")
	ErrInvalidCycleFrequency = errorsmod.Register(Codespace, 24, "invalid cycle frequency")
	ErrMaxCyclesExceeded     = errorsmod.Register(Codespace, 25, "maximum cycles exceeded")
	ErrOrderBookFull         = errorsmod.Register(Codespace, 26, "order book full")
	ErrPoolExists            = errorsmod.Register(Codespace, 27, "pool already exists")
	ErrPoolNotFound          = errorsmod.Register(Codespace, 28, "pool not found")
	ErrOrderNotFound         = errorsmod.Register(Codespace, 29, "order not found")
	ErrOrderBookExists       = errorsmod.Register(Codespace, 30, "order book already exists")
	ErrOrderBookNotFound     = errorsmod.Register(Codespace, 31, "order book not found")
	ErrInvalidTokenPair      = errorsmod.Register(Codespace, 32, "invalid token pair")
)

// IsRetryable reports whether err is a benign precondition that leaves the
// entity untouched and may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLimitPriceNotReached) ||
		errors.Is(err, ErrDCANotReady) ||
		errors.Is(err, ErrPriceOutOfRange)
}

// Code returns the registered code carried by err, or 0 if err is not an
// engine error.
func Code(err error) uint32 {
	var regErr *errorsmod.Error
	if errors.As(err, &regErr) && regErr.Codespace() == Codespace {
		return regErr.ABCICode()
	}
	return 0
}
