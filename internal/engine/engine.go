package engine

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/clock"
	"ammcore/internal/ledger"
	"ammcore/internal/metrics"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

const (
	// MaxDCACycles bounds TotalCycles of a DCA order.
	MaxDCACycles = 1000
	// MinCycleFrequency is the shortest allowed DCA interval in seconds.
	MinCycleFrequency = 60
)

// LockedLiquidityAccount holds the MinimumLiquidity shares minted by the first
// deposit into every pool. Nothing can sign for it, so the shares never move.
var LockedLiquidityAccount = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Config holds engine policy.
type Config struct {
	// MaxPriceImpactBps caps the price impact of every curve execution.
	// BasisPoints disables the cap.
	MaxPriceImpactBps uint16
	// QuoteSlippageBps is applied to MinimumReceived in quotes.
	QuoteSlippageBps uint16
	// AllowPartialFills lets limit executions fill less than the remainder.
	AllowPartialFills bool
	// ProtocolFeeRecipient receives the protocol share of trading fees. When
	// zero the share is held in the pool vault outside the reserves until the
	// pool admin calls CollectProtocolFees.
	ProtocolFeeRecipient common.Address
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		MaxPriceImpactBps: 500,
		QuoteSlippageBps:  amm.DefaultQuoteSlippageBps,
	}
}

func (c Config) Validate() error {
	if c.MaxPriceImpactBps == 0 || c.MaxPriceImpactBps > amm.BasisPoints {
		return fmt.Errorf("max price impact must be in (0, %d] bps", amm.BasisPoints)
	}
	if c.QuoteSlippageBps > amm.BasisPoints {
		return fmt.Errorf("quote slippage must be <= %d bps", amm.BasisPoints)
	}
	return nil
}

// Deps are the collaborators of an Engine. Journal and Metrics are optional.
type Deps struct {
	Store   storage.Store
	Ledger  ledger.Service
	Clock   clock.Clock
	Journal storage.Journal
	Metrics *metrics.Metrics
}

// Engine runs settlement operations and the order state machines. It holds
// no locks: callers serialize operations that touch the same pool or order.
type Engine struct {
	cfg     Config
	store   storage.Store
	ledger  ledger.Service
	clock   clock.Clock
	journal storage.Journal
	metrics *metrics.Metrics
	logger  *zap.Logger
	newID   func() string
}

func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		store:   deps.Store,
		ledger:  deps.Ledger,
		clock:   deps.Clock,
		journal: deps.Journal,
		metrics: deps.Metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) now(ctx context.Context) (int64, error) {
	now, err := e.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

func (e *Engine) loadPool(ctx context.Context, pair common.Hash) (model.Pool, error) {
	pool, err := e.store.GetPool(ctx, pair)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Pool{}, errorsmod.Wrapf(amm.ErrPoolNotFound, "pair %s", pair.Hex())
	}
	if err != nil {
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

func (e *Engine) loadActivePool(ctx context.Context, pair common.Hash) (model.Pool, error) {
	pool, err := e.loadPool(ctx, pair)
	if err != nil {
		return model.Pool{}, err
	}
	if pool.Paused {
		return model.Pool{}, errorsmod.Wrapf(amm.ErrPoolPaused, "pair %s", pair.Hex())
	}
	return pool, nil
}

func (e *Engine) loadOrderBook(ctx context.Context, pair common.Hash) (model.OrderBook, error) {
	book, err := e.store.GetOrderBook(ctx, pair)
	if errors.Is(err, storage.ErrNotFound) {
		return model.OrderBook{}, errorsmod.Wrapf(amm.ErrOrderBookNotFound, "pair %s", pair.Hex())
	}
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("load order book: %w", err)
	}
	return book, nil
}

func (e *Engine) loadLimitOrder(ctx context.Context, id string) (model.LimitOrder, error) {
	order, err := e.store.GetLimitOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.LimitOrder{}, errorsmod.Wrapf(amm.ErrOrderNotFound, "limit order %s", id)
	}
	if err != nil {
		return model.LimitOrder{}, fmt.Errorf("load limit order: %w", err)
	}
	return order, nil
}

func (e *Engine) loadDCAOrder(ctx context.Context, id string) (model.DCAOrder, error) {
	order, err := e.store.GetDCAOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.DCAOrder{}, errorsmod.Wrapf(amm.ErrOrderNotFound, "dca order %s", id)
	}
	if err != nil {
		return model.DCAOrder{}, fmt.Errorf("load dca order: %w", err)
	}
	return order, nil
}

// commit persists cs and applies ops as one unit, then journals the events.
// The journal is written after the commit is durable, so a journal failure is
// logged and does not fail the operation.
func (e *Engine) commit(ctx context.Context, op string, cs storage.Changeset, ops []ledger.Op) error {
	var settle storage.SettleFunc
	if len(ops) > 0 {
		settle = func(ctx context.Context) error {
			if err := e.ledger.Apply(ctx, ops...); err != nil {
				return fmt.Errorf("settle: %w", err)
			}
			return nil
		}
	}
	if err := e.store.Commit(ctx, cs, settle); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}

	if e.journal != nil && len(cs.Events) > 0 {
		if err := e.journal.PutEvents(ctx, cs.Events); err != nil {
			e.logger.Warn("journal write failed", zap.String("op", op), zap.Error(err))
		}
	}
	for _, pool := range cs.Pools {
		e.metrics.SetPoolState(pool)
	}
	return nil
}

// observe records the outcome of a public operation.
func (e *Engine) observe(op string, err error) {
	e.metrics.ObserveOperation(op, err)
	if err == nil {
		return
	}
	if amm.IsRetryable(err) {
		e.logger.Debug("operation deferred", zap.String("op", op), zap.Error(err))
		return
	}
	e.logger.Warn("operation rejected", zap.String("op", op), zap.Error(err))
}

func poolEvent(kind model.EventKind, pool model.Pool, actor common.Address, now int64) model.Event {
	return model.Event{
		Kind:      kind,
		Pool:      pool.ID,
		Actor:     actor,
		ReserveA:  pool.ReserveA,
		ReserveB:  pool.ReserveB,
		LPSupply:  pool.LPSupply,
		Timestamp: now,
	}
}

func validSlippage(bps uint16) error {
	if bps > amm.BasisPoints {
		return errorsmod.Wrapf(amm.ErrInvalidSlippage, "%d bps", bps)
	}
	return nil
}
