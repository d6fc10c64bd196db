package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

const namespace = "amm"

// Metrics holds the settlement and keeper collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	Operations      *prometheus.CounterVec
	SwapVolume      *prometheus.CounterVec
	FeesCollected   *prometheus.CounterVec
	ProtocolFees    *prometheus.CounterVec
	PriceImpact     prometheus.Histogram
	PoolReserves    *prometheus.GaugeVec
	LPTokenSupply   *prometheus.GaugeVec
	KeeperAttempts  *prometheus.CounterVec
	KeeperOpenOrder *prometheus.GaugeVec
	SweepDuration   prometheus.Histogram
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations by name and result code",
			},
			[]string{"op", "result"},
		),
		SwapVolume: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "swap_volume_total",
				Help:      "Input volume routed through the curve in base units",
			},
			[]string{"pool", "token"},
		),
		FeesCollected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "fees_collected_total",
				Help:      "Trading fees charged on input in base units",
			},
			[]string{"pool", "token"},
		),
		ProtocolFees: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "protocol_fees_total",
				Help:      "Protocol share of trading fees in base units",
			},
			[]string{"pool", "token"},
		),
		PriceImpact: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "price_impact_bps",
				Help:      "Price impact of executed trades in basis points",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 300, 500, 1000, 5000},
			},
		),
		PoolReserves: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "reserves",
				Help:      "Pool reserves after the last committed operation",
			},
			[]string{"pool", "token"},
		),
		LPTokenSupply: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "lp_supply",
				Help:      "Outstanding LP shares",
			},
			[]string{"pool"},
		),
		KeeperAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "attempts_total",
				Help:      "Keeper execution attempts by order kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		KeeperOpenOrder: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "open_orders",
				Help:      "Open orders seen by the last sweep",
			},
			[]string{"kind"},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "sweep_duration_seconds",
				Help:      "Wall time of one keeper sweep",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// ObserveOperation counts an engine call. Failures are labelled with their
// registered code.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveTrade records one curve execution.
func (m *Metrics) ObserveTrade(pool model.Pool, side model.Side, amountIn, fee, protocolFee uint64, impactBps uint16) {
	if m == nil {
		return
	}
	poolID := pool.ID.Hex()
	tokenIn, _ := pool.Tokens(side)
	token := tokenIn.Hex()
	m.SwapVolume.WithLabelValues(poolID, token).Add(float64(amountIn))
	m.FeesCollected.WithLabelValues(poolID, token).Add(float64(fee))
	if protocolFee > 0 {
		m.ProtocolFees.WithLabelValues(poolID, token).Add(float64(protocolFee))
	}
	m.PriceImpact.Observe(float64(impactBps))
}

// SetPoolState publishes reserves and supply of pool.
func (m *Metrics) SetPoolState(pool model.Pool) {
	if m == nil {
		return
	}
	poolID := pool.ID.Hex()
	m.PoolReserves.WithLabelValues(poolID, pool.TokenA.Hex()).Set(float64(pool.ReserveA))
	m.PoolReserves.WithLabelValues(poolID, pool.TokenB.Hex()).Set(float64(pool.ReserveB))
	m.LPTokenSupply.WithLabelValues(poolID).Set(float64(pool.LPSupply))
}

// ObserveKeeperAttempt counts one keeper execution attempt.
func (m *Metrics) ObserveKeeperAttempt(kind, outcome string) {
	if m == nil {
		return
	}
	m.KeeperAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveSweep records the size and duration of a keeper sweep.
func (m *Metrics) ObserveSweep(limitOpen, dcaOpen int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.KeeperOpenOrder.WithLabelValues("limit").Set(float64(limitOpen))
	m.KeeperOpenOrder.WithLabelValues("dca").Set(float64(dcaOpen))
	m.SweepDuration.Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := amm.Code(err); code != 0 {
		return "code_" + strconv.FormatUint(uint64(code), 10)
	}
	return "error"
}
