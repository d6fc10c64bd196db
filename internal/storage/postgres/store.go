package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// Store persists engine entities, the token ledger and analytics tables.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type txKey struct{}

func withTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// Commit writes cs and runs settle inside one transaction. A Ledger from the
// same Store joins that transaction through the context passed to settle.
func (s *Store) Commit(ctx context.Context, cs storage.Changeset, settle storage.SettleFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range cs.Pools {
		queuePool(batch, p)
	}
	for _, b := range cs.OrderBooks {
		queueOrderBook(batch, b)
	}
	for _, o := range cs.LimitOrders {
		queueLimitOrder(batch, o)
	}
	for _, o := range cs.DCAOrders {
		queueDCAOrder(batch, o)
	}
	for _, e := range cs.Events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		batch.Queue(`INSERT INTO settlement_events (kind, pool, order_id, ts, payload) VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
			string(e.Kind), e.Pool.Hex(), e.Order, e.Timestamp, payload)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("write changeset: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if settle != nil {
		if err := settle(withTx(ctx, tx)); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func queuePool(batch *pgx.Batch, p model.Pool) {
	batch.Queue(`
		INSERT INTO pools (
			id, token_a, token_b, lp_mint, vault, admin, reserve_a, reserve_b, lp_supply,
			fee_rate_bps, protocol_fee_rate_bps, fees_a, fees_b, protocol_fees_a, protocol_fees_b,
			held_protocol_fees_a, held_protocol_fees_b,
			paused, created_at, last_update_time, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10,$11,$12::numeric,$13::numeric,$14::numeric,$15::numeric,
			$16::numeric,$17::numeric,$18,$19,$20,now())
		ON CONFLICT (id) DO UPDATE SET
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			lp_supply = EXCLUDED.lp_supply,
			fees_a = EXCLUDED.fees_a,
			fees_b = EXCLUDED.fees_b,
			protocol_fees_a = EXCLUDED.protocol_fees_a,
			protocol_fees_b = EXCLUDED.protocol_fees_b,
			held_protocol_fees_a = EXCLUDED.held_protocol_fees_a,
			held_protocol_fees_b = EXCLUDED.held_protocol_fees_b,
			paused = EXCLUDED.paused,
			last_update_time = EXCLUDED.last_update_time,
			updated_at = now()
	`,
		p.ID.Hex(), p.TokenA.Hex(), p.TokenB.Hex(), p.LPMint.Hex(), p.Vault.Hex(), p.Admin.Hex(),
		num(p.ReserveA), num(p.ReserveB), num(p.LPSupply),
		int32(p.FeeRateBps), int32(p.ProtocolFeeRateBps),
		num(p.FeesA), num(p.FeesB), num(p.ProtocolFeesA), num(p.ProtocolFeesB),
		num(p.HeldProtocolFeesA), num(p.HeldProtocolFeesB),
		p.Paused, p.CreatedAt, p.LastUpdateTime,
	)
}

func queueOrderBook(batch *pgx.Batch, b model.OrderBook) {
	batch.Queue(`
		INSERT INTO order_books (pair, buy_orders_count, sell_orders_count, total_volume, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, now())
		ON CONFLICT (pair) DO UPDATE SET
			buy_orders_count = EXCLUDED.buy_orders_count,
			sell_orders_count = EXCLUDED.sell_orders_count,
			total_volume = EXCLUDED.total_volume,
			updated_at = now()
	`, b.Pair.Hex(), num(b.BuyOrdersCount), num(b.SellOrdersCount), num(b.TotalVolume))
}

func queueLimitOrder(batch *pgx.Batch, o model.LimitOrder) {
	batch.Queue(`
		INSERT INTO limit_orders (
			id, owner, pair, order_book, side, status, amount_in, amount_filled, amount_out,
			limit_price, slippage_tolerance_bps, escrow, escrow_open, created_at, expires_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11,$12,$13,$14,$15,now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_filled = EXCLUDED.amount_filled,
			amount_out = EXCLUDED.amount_out,
			escrow_open = EXCLUDED.escrow_open,
			updated_at = now()
	`,
		o.ID, o.Owner.Hex(), o.Pair.Hex(), o.OrderBook.Hex(), int16(o.Side), int16(o.Status),
		num(o.AmountIn), num(o.AmountFilled), num(o.AmountOut), num(o.LimitPrice),
		int32(o.SlippageToleranceBps), o.Escrow.Hex(), o.EscrowOpen, o.CreatedAt, o.ExpiresAt,
	)
}

func queueDCAOrder(batch *pgx.Batch, o model.DCAOrder) {
	batch.Queue(`
		INSERT INTO dca_orders (
			id, owner, pair, side, status, amount_per_cycle, total_cycles, cycles_executed,
			cycle_frequency, last_execution, next_execution, min_price, max_price,
			slippage_tolerance_bps, total_amount_in, total_amount_out, escrow, escrow_open, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11,$12::numeric,$13::numeric,$14,$15::numeric,$16::numeric,$17,$18,$19,now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cycles_executed = EXCLUDED.cycles_executed,
			last_execution = EXCLUDED.last_execution,
			next_execution = EXCLUDED.next_execution,
			total_amount_in = EXCLUDED.total_amount_in,
			total_amount_out = EXCLUDED.total_amount_out,
			escrow_open = EXCLUDED.escrow_open,
			updated_at = now()
	`,
		o.ID, o.Owner.Hex(), o.Pair.Hex(), int16(o.Side), int16(o.Status),
		num(o.AmountPerCycle), int32(o.TotalCycles), int32(o.CyclesExecuted),
		o.CycleFrequency, o.LastExecution, o.NextExecution, num(o.MinPrice), num(o.MaxPrice),
		int32(o.SlippageToleranceBps), num(o.TotalAmountIn), num(o.TotalAmountOut),
		o.Escrow.Hex(), o.EscrowOpen, o.CreatedAt,
	)
}

const poolColumns = `id, token_a, token_b, lp_mint, vault, admin, reserve_a::text, reserve_b::text, lp_supply::text,
	fee_rate_bps, protocol_fee_rate_bps, fees_a::text, fees_b::text, protocol_fees_a::text, protocol_fees_b::text,
	held_protocol_fees_a::text, held_protocol_fees_b::text,
	paused, created_at, last_update_time`

func (s *Store) GetPool(ctx context.Context, pair common.Hash) (model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id=$1`, pair.Hex())

	var (
		id, tokenA, tokenB, lpMint, vault, admin string
		reserveA, reserveB, supply               string
		feesA, feesB, protoA, protoB             string
		heldA, heldB                             string
		feeRate, protoRate                       int32
		p                                        model.Pool
	)
	err := row.Scan(&id, &tokenA, &tokenB, &lpMint, &vault, &admin, &reserveA, &reserveB, &supply,
		&feeRate, &protoRate, &feesA, &feesB, &protoA, &protoB,
		&heldA, &heldB, &p.Paused, &p.CreatedAt, &p.LastUpdateTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("pool %s: %w", pair.Hex(), storage.ErrNotFound)
		}
		return model.Pool{}, fmt.Errorf("query pool: %w", err)
	}

	var np numParser
	p.ID = common.HexToHash(id)
	p.TokenA = common.HexToAddress(tokenA)
	p.TokenB = common.HexToAddress(tokenB)
	p.LPMint = common.HexToAddress(lpMint)
	p.Vault = common.HexToAddress(vault)
	p.Admin = common.HexToAddress(admin)
	p.ReserveA = np.u64(reserveA)
	p.ReserveB = np.u64(reserveB)
	p.LPSupply = np.u64(supply)
	p.FeeRateBps = uint16(feeRate)
	p.ProtocolFeeRateBps = uint16(protoRate)
	p.FeesA = np.u64(feesA)
	p.FeesB = np.u64(feesB)
	p.ProtocolFeesA = np.u64(protoA)
	p.ProtocolFeesB = np.u64(protoB)
	p.HeldProtocolFeesA = np.u64(heldA)
	p.HeldProtocolFeesB = np.u64(heldB)
	return p, np.err
}

func (s *Store) GetOrderBook(ctx context.Context, pair common.Hash) (model.OrderBook, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT buy_orders_count::text, sell_orders_count::text, total_volume::text
		FROM order_books WHERE pair=$1
	`, pair.Hex())

	var buy, sell, volume string
	if err := row.Scan(&buy, &sell, &volume); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OrderBook{}, fmt.Errorf("order book %s: %w", pair.Hex(), storage.ErrNotFound)
		}
		return model.OrderBook{}, fmt.Errorf("query order book: %w", err)
	}

	var np numParser
	book := model.OrderBook{
		Pair:            pair,
		BuyOrdersCount:  np.u64(buy),
		SellOrdersCount: np.u64(sell),
		TotalVolume:     np.u64(volume),
	}
	return book, np.err
}

const limitColumns = `id, owner, pair, order_book, side, status, amount_in::text, amount_filled::text, amount_out::text,
	limit_price::text, slippage_tolerance_bps, escrow, escrow_open, created_at, expires_at`

func scanLimitOrder(row pgx.Row) (model.LimitOrder, error) {
	var (
		owner, pair, book, escrow            string
		side, status                         int16
		amountIn, filled, amountOut, limitPx string
		slippage                             int32
		o                                    model.LimitOrder
	)
	if err := row.Scan(&o.ID, &owner, &pair, &book, &side, &status, &amountIn, &filled, &amountOut,
		&limitPx, &slippage, &escrow, &o.EscrowOpen, &o.CreatedAt, &o.ExpiresAt); err != nil {
		return model.LimitOrder{}, err
	}

	var np numParser
	o.Owner = common.HexToAddress(owner)
	o.Pair = common.HexToHash(pair)
	o.OrderBook = common.HexToHash(book)
	o.Side = model.Side(side)
	o.Status = model.Status(status)
	o.AmountIn = np.u64(amountIn)
	o.AmountFilled = np.u64(filled)
	o.AmountOut = np.u64(amountOut)
	o.LimitPrice = np.u64(limitPx)
	o.SlippageToleranceBps = uint16(slippage)
	o.Escrow = common.HexToAddress(escrow)
	return o, np.err
}

func (s *Store) GetLimitOrder(ctx context.Context, id string) (model.LimitOrder, error) {
	o, err := scanLimitOrder(s.pool.QueryRow(ctx, `SELECT `+limitColumns+` FROM limit_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LimitOrder{}, fmt.Errorf("limit order %s: %w", id, storage.ErrNotFound)
		}
		return model.LimitOrder{}, fmt.Errorf("query limit order: %w", err)
	}
	return o, nil
}

// keyset returns the arguments of a "($n::boolean OR (key, id) > (...))"
// predicate; a nil cursor matches every row.
func keyset(after *storage.Cursor) (bool, int64, string) {
	if after == nil {
		return true, 0, ""
	}
	return false, after.Key, after.ID
}

func (s *Store) ListOpenLimitOrders(ctx context.Context, after *storage.Cursor, limit int) ([]model.LimitOrder, error) {
	all, key, id := keyset(after)
	rows, err := s.pool.Query(ctx, `
		SELECT `+limitColumns+` FROM limit_orders
		WHERE status IN ($1, $2) AND ($3::boolean OR (created_at, id) > ($4::bigint, $5::text))
		ORDER BY created_at, id
		LIMIT NULLIF($6, 0)
	`, int16(model.StatusOpen), int16(model.StatusPartiallyFilled), all, key, id, int64(max(limit, 0)))
	if err != nil {
		return nil, fmt.Errorf("list limit orders: %w", err)
	}
	defer rows.Close()

	var out []model.LimitOrder
	for rows.Next() {
		o, err := scanLimitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan limit order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const dcaColumns = `id, owner, pair, side, status, amount_per_cycle::text, total_cycles, cycles_executed,
	cycle_frequency, last_execution, next_execution, min_price::text, max_price::text, slippage_tolerance_bps,
	total_amount_in::text, total_amount_out::text, escrow, escrow_open, created_at`

func scanDCAOrder(row pgx.Row) (model.DCAOrder, error) {
	var (
		owner, pair, escrow               string
		side, status                      int16
		perCycle, minPx, maxPx, tin, tout string
		total, executed, slippage         int32
		o                                 model.DCAOrder
	)
	if err := row.Scan(&o.ID, &owner, &pair, &side, &status, &perCycle, &total, &executed,
		&o.CycleFrequency, &o.LastExecution, &o.NextExecution, &minPx, &maxPx, &slippage,
		&tin, &tout, &escrow, &o.EscrowOpen, &o.CreatedAt); err != nil {
		return model.DCAOrder{}, err
	}

	var np numParser
	o.Owner = common.HexToAddress(owner)
	o.Pair = common.HexToHash(pair)
	o.Side = model.Side(side)
	o.Status = model.Status(status)
	o.AmountPerCycle = np.u64(perCycle)
	o.TotalCycles = uint16(total)
	o.CyclesExecuted = uint16(executed)
	o.MinPrice = np.u64(minPx)
	o.MaxPrice = np.u64(maxPx)
	o.SlippageToleranceBps = uint16(slippage)
	o.TotalAmountIn = np.u64(tin)
	o.TotalAmountOut = np.u64(tout)
	o.Escrow = common.HexToAddress(escrow)
	return o, np.err
}

func (s *Store) GetDCAOrder(ctx context.Context, id string) (model.DCAOrder, error) {
	o, err := scanDCAOrder(s.pool.QueryRow(ctx, `SELECT `+dcaColumns+` FROM dca_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DCAOrder{}, fmt.Errorf("dca order %s: %w", id, storage.ErrNotFound)
		}
		return model.DCAOrder{}, fmt.Errorf("query dca order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOpenDCAOrders(ctx context.Context, after *storage.Cursor, limit int) ([]model.DCAOrder, error) {
	all, key, id := keyset(after)
	rows, err := s.pool.Query(ctx, `
		SELECT `+dcaColumns+` FROM dca_orders
		WHERE status IN ($1, $2) AND ($3::boolean OR (next_execution, id) > ($4::bigint, $5::text))
		ORDER BY next_execution, id
		LIMIT NULLIF($6, 0)
	`, int16(model.StatusOpen), int16(model.StatusPartiallyFilled), all, key, id, int64(max(limit, 0)))
	if err != nil {
		return nil, fmt.Errorf("list dca orders: %w", err)
	}
	defer rows.Close()

	var out []model.DCAOrder
	for rows.Next() {
		o, err := scanDCAOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dca order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func num(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// numParser parses NUMERIC text columns and keeps the first failure.
type numParser struct {
	err error
}

func (p *numParser) u64(s string) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v
}

var _ storage.Store = (*Store)(nil)
