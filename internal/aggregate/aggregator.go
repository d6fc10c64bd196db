package aggregate

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/model"
	"ammcore/internal/storage"
)

const (
	tvlMethodReserves = "end_of_window_reserves"
	tvlMethodNone     = "unavailable"
)

// MetricsSink persists window metrics. *postgres.Store satisfies it.
type MetricsSink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// PoolSource resolves the tokens of a pool. storage.Store satisfies it.
type PoolSource interface {
	GetPool(ctx context.Context, pair common.Hash) (model.Pool, error)
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds int64
	BatchSize     int
	RecomputeFrom int64
	StateStore    StateStore
}

// Deps are the collaborators of an Aggregator. Pools and Decimals are
// optional; without them amounts are reported in base units.
type Deps struct {
	Sink     MetricsSink
	Pools    PoolSource
	Decimals DecimalsSource
}

// Aggregator folds the settlement journal into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	deps         Deps
	logger       *zap.Logger
	decimals     DecimalsSource
	tokens       map[common.Hash][2]common.Address
	accumulators map[common.Hash]*Accumulator
}

func NewAggregator(cfg Config, deps Deps, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	var decimals DecimalsSource
	if deps.Decimals != nil {
		decimals = newCachedDecimals(deps.Decimals)
	}

	return &Aggregator{
		cfg:          cfg,
		deps:         deps,
		logger:       logger,
		decimals:     decimals,
		tokens:       make(map[common.Hash][2]common.Address),
		accumulators: make(map[common.Hash]*Accumulator),
	}
}

// Run aggregates the journal file at inputPath.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return a.Process(ctx, file)
}

// Process aggregates journal lines read from r.
func (a *Aggregator) Process(ctx context.Context, r io.Reader) error {
	if a.deps.Sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, windows, skipped, failed int

	err = storage.ScanEvents(r, func(ev model.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		if ev.Timestamp <= startTs {
			skipped++
			return nil
		}

		start := windowStart(ev.Timestamp, a.cfg.WindowSeconds)
		acc := a.accumulators[ev.Pool]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, a.flushAccumulator(ctx, acc))
			windows++
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(ev.Pool, start, start+a.cfg.WindowSeconds)
			a.accumulators[ev.Pool] = acc
		}

		if err := acc.AddEvent(ev); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", ev.Pool.Hex()), zap.String("event", string(ev.Kind)))
			return nil
		}
		if ev.Timestamp > maxTs {
			maxTs = ev.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.deps.Sink.UpsertWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			return a.saveState(ctx)
		}
		return nil
	}, func(err error) {
		failed++
		a.logger.Warn("decode journal line", zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("aggregate journal: %w", err)
	}

	for _, acc := range a.accumulators {
		batch = append(batch, a.flushAccumulator(ctx, acc))
		windows++
	}
	a.accumulators = make(map[common.Hash]*Accumulator)

	if len(batch) > 0 {
		if err := a.deps.Sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (int64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the newest timestamp below every open window, so a
// restart re-reads each open window from its start.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators) - 1
	if safeTs <= 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) model.PoolWindowMetrics {
	tokenA, tokenB := a.poolTokens(ctx, acc.Pool)
	decA := a.tokenDecimals(ctx, tokenA)
	decB := a.tokenDecimals(ctx, tokenB)

	lpFeeA, lpFeeB := acc.LPFees()
	feeA, feeB := lpFeeA.ToBig(), lpFeeB.ToBig()

	var tvlA, tvlB *big.Int
	var tvlAStr, tvlBStr *string
	tvlMethod := tvlMethodNone
	if acc.ReserveA > 0 || acc.ReserveB > 0 {
		tvlA = new(big.Int).SetUint64(acc.ReserveA)
		tvlB = new(big.Int).SetUint64(acc.ReserveB)
		fa := formatTokenAmount(tvlA, decA)
		fb := formatTokenAmount(tvlB, decB)
		tvlAStr, tvlBStr = &fa, &fb
		tvlMethod = tvlMethodReserves
	}

	return model.PoolWindowMetrics{
		Pool:           acc.Pool,
		WindowSizeSecs: a.cfg.WindowSeconds,
		WindowStart:    time.Unix(acc.WindowStart, 0).UTC(),
		WindowEnd:      time.Unix(acc.WindowEnd, 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        formatTokenAmount(acc.VolumeA.ToBig(), decA),
		VolumeB:        formatTokenAmount(acc.VolumeB.ToBig(), decB),
		FeeA:           formatTokenAmount(acc.FeeA.ToBig(), decA),
		FeeB:           formatTokenAmount(acc.FeeB.ToBig(), decB),
		ProtocolFeeA:   formatTokenAmount(acc.ProtocolFeeA.ToBig(), decA),
		ProtocolFeeB:   formatTokenAmount(acc.ProtocolFeeB.ToBig(), decB),
		FeeRateA:       computeRate(feeA, tvlA),
		FeeRateB:       computeRate(feeB, tvlB),
		TVLA:           tvlAStr,
		TVLB:           tvlBStr,
		APR:            computeAPR(feeA, feeB, tvlA, tvlB, a.cfg.WindowSeconds),
		TVLMethod:      tvlMethod,
	}
}

func (a *Aggregator) poolTokens(ctx context.Context, pair common.Hash) (common.Address, common.Address) {
	if tokens, ok := a.tokens[pair]; ok {
		return tokens[0], tokens[1]
	}
	if a.deps.Pools == nil {
		return common.Address{}, common.Address{}
	}
	pool, err := a.deps.Pools.GetPool(ctx, pair)
	if err != nil {
		a.logger.Warn("pool lookup failed", zap.String("pool", pair.Hex()), zap.Error(err))
		return common.Address{}, common.Address{}
	}
	a.tokens[pair] = [2]common.Address{pool.TokenA, pool.TokenB}
	return pool.TokenA, pool.TokenB
}

// tokenDecimals falls back to base units when the token cannot be resolved.
func (a *Aggregator) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	if a.decimals == nil || token == (common.Address{}) {
		return 0
	}
	decimals, err := a.decimals.TokenDecimals(ctx, token)
	if err != nil {
		a.logger.Debug("token decimals unavailable", zap.String("token", token.Hex()), zap.Error(err))
		return 0
	}
	return decimals
}

func windowStart(ts, windowSec int64) int64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[common.Hash]*Accumulator) int64 {
	var min int64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
