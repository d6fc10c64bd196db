package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

// Memory is an in-process Service backed by maps.
type Memory struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
	supply   map[common.Address]uint64
	escrows  map[common.Address]common.Address
	logger   *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		balances: make(map[balanceKey]uint64),
		supply:   make(map[common.Address]uint64),
		escrows:  make(map[common.Address]common.Address),
		logger:   logger,
	}
}

// Balance returns the holding of account in token.
func (m *Memory) Balance(token, account common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[balanceKey{token, account}]
}

// Supply returns the outstanding amount of token.
func (m *Memory) Supply(token common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply[token]
}

// EscrowOwner returns the owner of an open escrow.
func (m *Memory) EscrowOwner(escrow common.Address) (common.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.escrows[escrow]
	return owner, ok
}

// Apply stages every op against a copy-on-write overlay and commits only if
// all of them succeed.
func (m *Memory) Apply(ctx context.Context, ops ...Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		base:     m,
		balances: make(map[balanceKey]uint64),
		supply:   make(map[common.Address]uint64),
		escrows:  make(map[common.Address]*common.Address),
	}
	for i, op := range ops {
		if err := tx.apply(op); err != nil {
			return fmt.Errorf("ledger op %d (%s): %w", i, op.Kind, err)
		}
	}

	for k, v := range tx.balances {
		if v == 0 {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	for k, v := range tx.supply {
		m.supply[k] = v
	}
	for k, owner := range tx.escrows {
		if owner == nil {
			delete(m.escrows, k)
			continue
		}
		m.escrows[k] = *owner
	}

	m.logger.Debug("ledger batch applied", zap.Int("ops", len(ops)))
	return nil
}

type memoryTx struct {
	base     *Memory
	balances map[balanceKey]uint64
	supply   map[common.Address]uint64
	// nil marks a closed escrow
	escrows map[common.Address]*common.Address
}

func (tx *memoryTx) balance(k balanceKey) uint64 {
	if v, ok := tx.balances[k]; ok {
		return v
	}
	return tx.base.balances[k]
}

func (tx *memoryTx) totalSupply(token common.Address) uint64 {
	if v, ok := tx.supply[token]; ok {
		return v
	}
	return tx.base.supply[token]
}

func (tx *memoryTx) escrowOwner(escrow common.Address) (common.Address, bool) {
	if owner, ok := tx.escrows[escrow]; ok {
		if owner == nil {
			return common.Address{}, false
		}
		return *owner, true
	}
	owner, ok := tx.base.escrows[escrow]
	return owner, ok
}

func (tx *memoryTx) debit(k balanceKey, amount uint64) error {
	current := tx.balance(k)
	if current < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, k.account.Hex(), current, k.token.Hex(), amount)
	}
	tx.balances[k] = current - amount
	return nil
}

func (tx *memoryTx) credit(k balanceKey, amount uint64) error {
	current := tx.balance(k)
	if current+amount < current {
		return ErrSupplyOverflow
	}
	tx.balances[k] = current + amount
	return nil
}

func (tx *memoryTx) apply(op Op) error {
	switch op.Kind {
	case OpTransfer:
		if op.From == op.To {
			return nil
		}
		if err := tx.debit(balanceKey{op.Token, op.From}, op.Amount); err != nil {
			return err
		}
		return tx.credit(balanceKey{op.Token, op.To}, op.Amount)
	case OpMint:
		supply := tx.totalSupply(op.Token)
		if supply+op.Amount < supply {
			return ErrSupplyOverflow
		}
		if err := tx.credit(balanceKey{op.Token, op.To}, op.Amount); err != nil {
			return err
		}
		tx.supply[op.Token] = supply + op.Amount
		return nil
	case OpBurn:
		if err := tx.debit(balanceKey{op.Token, op.From}, op.Amount); err != nil {
			return err
		}
		tx.supply[op.Token] = tx.totalSupply(op.Token) - op.Amount
		return nil
	case OpOpenEscrow:
		if _, ok := tx.escrowOwner(op.To); ok {
			return ErrEscrowExists
		}
		owner := op.From
		tx.escrows[op.To] = &owner
		return nil
	case OpCloseEscrow:
		owner, ok := tx.escrowOwner(op.From)
		if !ok {
			return ErrEscrowNotFound
		}
		if owner != op.To {
			return ErrEscrowOwner
		}
		if !tx.empty(op.From) {
			return ErrEscrowNotEmpty
		}
		tx.escrows[op.From] = nil
		return nil
	default:
		return ErrInvalidOp
	}
}

func (tx *memoryTx) empty(account common.Address) bool {
	for k := range tx.base.balances {
		if k.account == account && tx.balance(k) != 0 {
			return false
		}
	}
	for k, v := range tx.balances {
		if k.account == account && v != 0 {
			return false
		}
	}
	return true
}
