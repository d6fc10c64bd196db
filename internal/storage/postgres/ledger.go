package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"ammcore/internal/ledger"
)

// Ledger is a ledger.Service over the ledger_* tables. Inside Store.Commit it
// joins the commit transaction; otherwise each Apply runs in its own.
type Ledger struct {
	store *Store
}

func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Apply(ctx context.Context, ops ...ledger.Op) error {
	if tx, ok := txFromContext(ctx); ok {
		return l.applyAll(ctx, tx, ops)
	}

	tx, err := l.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := l.applyAll(ctx, tx, ops); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Balance returns the holding of account in token.
func (l *Ledger) Balance(ctx context.Context, token, account common.Address) (uint64, error) {
	var amount string
	err := l.store.pool.QueryRow(ctx,
		`SELECT amount::text FROM ledger_balances WHERE token=$1 AND account=$2`,
		token.Hex(), account.Hex(),
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query balance: %w", err)
	}
	var np numParser
	v := np.u64(amount)
	return v, np.err
}

func (l *Ledger) applyAll(ctx context.Context, tx pgx.Tx, ops []ledger.Op) error {
	for i, op := range ops {
		if err := l.apply(ctx, tx, op); err != nil {
			return fmt.Errorf("ledger op %d (%s): %w", i, op.Kind, err)
		}
	}
	return nil
}

func (l *Ledger) apply(ctx context.Context, tx pgx.Tx, op ledger.Op) error {
	switch op.Kind {
	case ledger.OpTransfer:
		if op.From == op.To {
			return nil
		}
		if err := debit(ctx, tx, op.Token, op.From, op.Amount); err != nil {
			return err
		}
		return credit(ctx, tx, op.Token, op.To, op.Amount)
	case ledger.OpMint:
		if err := credit(ctx, tx, op.Token, op.To, op.Amount); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_supply (token, amount) VALUES ($1, $2::numeric)
			ON CONFLICT (token) DO UPDATE SET amount = ledger_supply.amount + EXCLUDED.amount
		`, op.Token.Hex(), num(op.Amount))
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrSupplyOverflow, err)
		}
		return nil
	case ledger.OpBurn:
		if err := debit(ctx, tx, op.Token, op.From, op.Amount); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE ledger_supply SET amount = amount - $2::numeric WHERE token=$1`,
			op.Token.Hex(), num(op.Amount))
		if err != nil {
			return fmt.Errorf("update supply: %w", err)
		}
		return nil
	case ledger.OpOpenEscrow:
		tag, err := tx.Exec(ctx,
			`INSERT INTO ledger_escrows (escrow, owner) VALUES ($1, $2) ON CONFLICT (escrow) DO NOTHING`,
			op.To.Hex(), op.From.Hex())
		if err != nil {
			return fmt.Errorf("open escrow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrEscrowExists
		}
		return nil
	case ledger.OpCloseEscrow:
		var owner string
		err := tx.QueryRow(ctx, `SELECT owner FROM ledger_escrows WHERE escrow=$1 FOR UPDATE`, op.From.Hex()).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.ErrEscrowNotFound
			}
			return fmt.Errorf("load escrow: %w", err)
		}
		if common.HexToAddress(owner) != op.To {
			return ledger.ErrEscrowOwner
		}
		var funded bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_balances WHERE account=$1 AND amount > 0)`,
			op.From.Hex()).Scan(&funded)
		if err != nil {
			return fmt.Errorf("check escrow balance: %w", err)
		}
		if funded {
			return ledger.ErrEscrowNotEmpty
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_escrows WHERE escrow=$1`, op.From.Hex()); err != nil {
			return fmt.Errorf("close escrow: %w", err)
		}
		return nil
	default:
		return ledger.ErrInvalidOp
	}
}

func debit(ctx context.Context, tx pgx.Tx, token, account common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE ledger_balances SET amount = amount - $3::numeric
		WHERE token=$1 AND account=$2 AND amount >= $3::numeric
	`, token.Hex(), account.Hex(), num(amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", account.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s needs %d of %s", ledger.ErrInsufficientBalance, account.Hex(), amount, token.Hex())
	}
	return nil
}

func credit(ctx context.Context, tx pgx.Tx, token, account common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_balances (token, account, amount) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (token, account) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount
	`, token.Hex(), account.Hex(), num(amount))
	if err != nil {
		return fmt.Errorf("credit %s: %w", account.Hex(), err)
	}
	return nil
}

var _ ledger.Service = (*Ledger)(nil)
