package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSupplyOverflow      = errors.New("token supply overflow")
	ErrEscrowExists        = errors.New("escrow already open")
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowNotEmpty      = errors.New("escrow not empty")
	ErrEscrowOwner         = errors.New("escrow owner mismatch")
	ErrInvalidOp           = errors.New("invalid ledger op")
)

// OpKind enumerates ledger mutations.
type OpKind uint8

const (
	OpTransfer OpKind = iota + 1
	OpMint
	OpBurn
	OpOpenEscrow
	OpCloseEscrow
)

func (k OpKind) String() string {
	switch k {
	case OpTransfer:
		return "transfer"
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	case OpOpenEscrow:
		return "open_escrow"
	case OpCloseEscrow:
		return "close_escrow"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is one token movement or escrow lifecycle step.
type Op struct {
	Kind   OpKind
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount uint64
}

// Transfer moves amount of token between accounts.
func Transfer(token, from, to common.Address, amount uint64) Op {
	return Op{Kind: OpTransfer, Token: token, From: from, To: to, Amount: amount}
}

// Mint creates amount of token in to.
func Mint(token, to common.Address, amount uint64) Op {
	return Op{Kind: OpMint, Token: token, To: to, Amount: amount}
}

// Burn destroys amount of token held by from.
func Burn(token, from common.Address, amount uint64) Op {
	return Op{Kind: OpBurn, Token: token, From: from, Amount: amount}
}

// OpenEscrow registers escrow as an account controlled on behalf of owner.
func OpenEscrow(escrow, owner common.Address) Op {
	return Op{Kind: OpOpenEscrow, From: owner, To: escrow}
}

// CloseEscrow retires an empty escrow; any storage deposit goes back to owner.
func CloseEscrow(escrow, owner common.Address) Op {
	return Op{Kind: OpCloseEscrow, From: escrow, To: owner}
}

// Service applies a batch of ops atomically: either every op applies or none.
type Service interface {
	Apply(ctx context.Context, ops ...Op) error
}
