package postgres

import (
	"context"
	"fmt"
)

// Amounts are u64 on the engine side and NUMERIC(20,0) here. They travel as
// decimal text so no intermediate type can truncate them.
const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id TEXT PRIMARY KEY,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	lp_mint TEXT NOT NULL,
	vault TEXT NOT NULL,
	admin TEXT NOT NULL,
	reserve_a NUMERIC(20,0) NOT NULL,
	reserve_b NUMERIC(20,0) NOT NULL,
	lp_supply NUMERIC(20,0) NOT NULL,
	fee_rate_bps INTEGER NOT NULL,
	protocol_fee_rate_bps INTEGER NOT NULL,
	fees_a NUMERIC(20,0) NOT NULL,
	fees_b NUMERIC(20,0) NOT NULL,
	protocol_fees_a NUMERIC(20,0) NOT NULL,
	protocol_fees_b NUMERIC(20,0) NOT NULL,
	held_protocol_fees_a NUMERIC(20,0) NOT NULL DEFAULT 0,
	held_protocol_fees_b NUMERIC(20,0) NOT NULL DEFAULT 0,
	paused BOOLEAN NOT NULL DEFAULT false,
	created_at BIGINT NOT NULL,
	last_update_time BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_books (
	pair TEXT PRIMARY KEY REFERENCES pools (id),
	buy_orders_count NUMERIC(20,0) NOT NULL,
	sell_orders_count NUMERIC(20,0) NOT NULL,
	total_volume NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS limit_orders (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	pair TEXT NOT NULL REFERENCES pools (id),
	order_book TEXT NOT NULL,
	side SMALLINT NOT NULL,
	status SMALLINT NOT NULL,
	amount_in NUMERIC(20,0) NOT NULL,
	amount_filled NUMERIC(20,0) NOT NULL,
	amount_out NUMERIC(20,0) NOT NULL,
	limit_price NUMERIC(20,0) NOT NULL,
	slippage_tolerance_bps INTEGER NOT NULL,
	escrow TEXT NOT NULL,
	escrow_open BOOLEAN NOT NULL,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS limit_orders_open_idx ON limit_orders (status, created_at);

CREATE TABLE IF NOT EXISTS dca_orders (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	pair TEXT NOT NULL REFERENCES pools (id),
	side SMALLINT NOT NULL,
	status SMALLINT NOT NULL,
	amount_per_cycle NUMERIC(20,0) NOT NULL,
	total_cycles INTEGER NOT NULL,
	cycles_executed INTEGER NOT NULL,
	cycle_frequency BIGINT NOT NULL,
	last_execution BIGINT NOT NULL,
	next_execution BIGINT NOT NULL,
	min_price NUMERIC(20,0) NOT NULL,
	max_price NUMERIC(20,0) NOT NULL,
	slippage_tolerance_bps INTEGER NOT NULL,
	total_amount_in NUMERIC(20,0) NOT NULL,
	total_amount_out NUMERIC(20,0) NOT NULL,
	escrow TEXT NOT NULL,
	escrow_open BOOLEAN NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS dca_orders_open_idx ON dca_orders (status, next_execution);

CREATE TABLE IF NOT EXISTS settlement_events (
	seq BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	pool TEXT NOT NULL,
	order_id TEXT,
	ts BIGINT NOT NULL,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS settlement_events_pool_ts_idx ON settlement_events (pool, ts);

CREATE TABLE IF NOT EXISTS ledger_balances (
	token TEXT NOT NULL,
	account TEXT NOT NULL,
	amount NUMERIC(20,0) NOT NULL CHECK (amount >= 0 AND amount <= 18446744073709551615),
	PRIMARY KEY (token, account)
);
CREATE INDEX IF NOT EXISTS ledger_balances_account_idx ON ledger_balances (account);

CREATE TABLE IF NOT EXISTS ledger_supply (
	token TEXT PRIMARY KEY,
	amount NUMERIC(20,0) NOT NULL CHECK (amount >= 0 AND amount <= 18446744073709551615)
);

CREATE TABLE IF NOT EXISTS ledger_escrows (
	escrow TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	opened_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	pool TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	volume_a NUMERIC NOT NULL,
	volume_b NUMERIC NOT NULL,
	fee_a NUMERIC NOT NULL,
	fee_b NUMERIC NOT NULL,
	protocol_fee_a NUMERIC NOT NULL,
	protocol_fee_b NUMERIC NOT NULL,
	fee_rate_a NUMERIC,
	fee_rate_b NUMERIC,
	tvl_a NUMERIC,
	tvl_b NUMERIC,
	apr NUMERIC,
	tvl_method TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS aggregate_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE pools ADD COLUMN IF NOT EXISTS held_protocol_fees_a NUMERIC(20,0) NOT NULL DEFAULT 0;
ALTER TABLE pools ADD COLUMN IF NOT EXISTS held_protocol_fees_b NUMERIC(20,0) NOT NULL DEFAULT 0;
`

// Migrate creates every table the store uses. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
