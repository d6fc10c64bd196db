package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ammcore/internal/amm"
	"ammcore/internal/clock"
	"ammcore/internal/engine"
	"ammcore/internal/metrics"
	"ammcore/internal/model"
	"ammcore/internal/storage"
)

// Executor runs order executions. *engine.Engine satisfies it.
type Executor interface {
	ExecuteLimitOrder(ctx context.Context, executor common.Address, id string, fillAmount uint64) (engine.LimitFill, error)
	ExecuteDCACycle(ctx context.Context, executor common.Address, id string) (engine.DCACycle, error)
}

// OrderSource pages through orders that may be executable. storage.Store
// satisfies it.
type OrderSource interface {
	ListOpenLimitOrders(ctx context.Context, after *storage.Cursor, limit int) ([]model.LimitOrder, error)
	ListOpenDCAOrders(ctx context.Context, after *storage.Cursor, limit int) ([]model.DCAOrder, error)
}

// Config holds runtime settings for the keeper.
type Config struct {
	Executor common.Address
	Interval time.Duration
	// BatchSize is the page size used when listing open orders. Every sweep
	// pages through all of them.
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	// Rate caps executions per second. Zero means unlimited.
	Rate float64
}

// SweepResult counts the outcomes of one pass over open orders.
type SweepResult struct {
	Attempted int
	Executed  int
	Pending   int
	Rejected  int
	Failed    int
}

const (
	outcomeExecuted = "executed"
	outcomePending  = "pending"
	outcomeExpired  = "expired"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Runner periodically executes open limit and DCA orders whose conditions
// hold. It runs one sweep at a time, so it never races itself on an order.
type Runner struct {
	cfg     Config
	exec    Executor
	orders  OrderSource
	clock   clock.Clock
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRunner(cfg Config, exec Executor, orders OrderSource, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = max(1, int(cfg.Rate))
	}
	return &Runner{
		cfg:     cfg,
		exec:    exec,
		orders:  orders,
		clock:   clk,
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
		logger:  logger,
	}
}

// Run sweeps immediately and then every Interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.exec == nil {
		return fmt.Errorf("executor is nil")
	}
	if r.orders == nil {
		return fmt.Errorf("order source is nil")
	}
	if r.clock == nil {
		return fmt.Errorf("clock is nil")
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	r.logger.Info("keeper started",
		zap.String("executor", r.cfg.Executor.Hex()),
		zap.Duration("interval", r.cfg.Interval),
		zap.Float64("rate", r.cfg.Rate),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		res, err := r.Sweep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("sweep failed", zap.Error(err))
		} else if res.Attempted > 0 {
			r.logger.Info("sweep complete",
				zap.Int("attempted", res.Attempted),
				zap.Int("executed", res.Executed),
				zap.Int("pending", res.Pending),
				zap.Int("rejected", res.Rejected),
				zap.Int("failed", res.Failed),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep attempts every open limit order and every due DCA order once.
func (r *Runner) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	var res SweepResult

	now, err := r.clock.Now(ctx)
	if err != nil {
		return res, fmt.Errorf("read clock: %w", err)
	}

	var limitsSeen int
	var after *storage.Cursor
	for {
		page, err := r.listLimitOrders(ctx, after)
		if err != nil {
			return res, fmt.Errorf("list limit orders: %w", err)
		}
		limitsSeen += len(page)
		for _, order := range page {
			id := order.ID
			err := r.attempt(ctx, func(ctx context.Context) error {
				_, err := r.exec.ExecuteLimitOrder(ctx, r.cfg.Executor, id, 0)
				return err
			})
			if err := r.record(&res, "limit", id, err); err != nil {
				return res, err
			}
		}
		if r.lastPage(len(page)) {
			break
		}
		last := page[len(page)-1]
		after = &storage.Cursor{Key: last.CreatedAt, ID: last.ID}
	}

	var dcasSeen int
	after = nil
dca:
	for {
		page, err := r.listDCAOrders(ctx, after)
		if err != nil {
			return res, fmt.Errorf("list dca orders: %w", err)
		}
		dcasSeen += len(page)
		for _, order := range page {
			// Pages are ordered by NextExecution, so nothing after this is due.
			if !order.Ready(now) {
				break dca
			}
			id := order.ID
			err := r.attempt(ctx, func(ctx context.Context) error {
				_, err := r.exec.ExecuteDCACycle(ctx, r.cfg.Executor, id)
				return err
			})
			if err := r.record(&res, "dca", id, err); err != nil {
				return res, err
			}
		}
		if r.lastPage(len(page)) {
			break
		}
		last := page[len(page)-1]
		after = &storage.Cursor{Key: last.NextExecution, ID: last.ID}
	}

	r.metrics.ObserveSweep(limitsSeen, dcasSeen, time.Since(started))
	return res, nil
}

func (r *Runner) lastPage(n int) bool {
	return n == 0 || r.cfg.BatchSize <= 0 || n < r.cfg.BatchSize
}

func (r *Runner) attempt(ctx context.Context, fn func(context.Context) error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, isInfraError, fn)
}

// record classifies the outcome of one attempt. It returns an error only when
// the sweep itself must stop.
func (r *Runner) record(res *SweepResult, kind, id string, err error) error {
	res.Attempted++
	outcome := outcomeExecuted
	switch {
	case err == nil:
		res.Executed++
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case amm.IsRetryable(err):
		res.Pending++
		outcome = outcomePending
		r.logger.Debug("order not executable yet", zap.String("kind", kind), zap.String("order", id), zap.Error(err))
	case errors.Is(err, amm.ErrOrderExpired):
		res.Rejected++
		outcome = outcomeExpired
		r.logger.Info("order expired", zap.String("kind", kind), zap.String("order", id))
	case amm.Code(err) != 0:
		res.Rejected++
		outcome = outcomeRejected
		r.logger.Warn("order execution rejected", zap.String("kind", kind), zap.String("order", id), zap.Error(err))
	default:
		res.Failed++
		outcome = outcomeFailed
		r.logger.Error("order execution failed", zap.String("kind", kind), zap.String("order", id), zap.Error(err))
	}
	r.metrics.ObserveKeeperAttempt(kind, outcome)
	return nil
}

func (r *Runner) listLimitOrders(ctx context.Context, after *storage.Cursor) ([]model.LimitOrder, error) {
	var orders []model.LimitOrder
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		orders, err = r.orders.ListOpenLimitOrders(ctx, after, r.cfg.BatchSize)
		if err != nil {
			r.logger.Warn("list limit orders failed", zap.Error(err))
		}
		return err
	})
	return orders, err
}

func (r *Runner) listDCAOrders(ctx context.Context, after *storage.Cursor) ([]model.DCAOrder, error) {
	var orders []model.DCAOrder
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		orders, err = r.orders.ListOpenDCAOrders(ctx, after, r.cfg.BatchSize)
		if err != nil {
			r.logger.Warn("list dca orders failed", zap.Error(err))
		}
		return err
	})
	return orders, err
}

// isInfraError reports whether err came from storage, the ledger or the
// clock rather than from an engine rule. Only those are worth retrying.
func isInfraError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return amm.Code(err) == 0
}
