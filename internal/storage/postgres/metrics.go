package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"ammcore/internal/model"
)

// windowMetricColumns lists the upserted columns in argument order. The first
// three form the conflict key.
var windowMetricColumns = []string{
	"pool", "window_size_seconds", "window_start_ts",
	"window_end_ts", "swap_count",
	"volume_a", "volume_b", "fee_a", "fee_b", "protocol_fee_a", "protocol_fee_b",
	"fee_rate_a", "fee_rate_b", "tvl_a", "tvl_b", "apr", "tvl_method",
}

// Columns in [numericFrom, numericTo) are passed as decimal strings.
const numericFrom, numericTo = 5, 16

var upsertWindowMetricsSQL = buildWindowMetricsUpsert()

func buildWindowMetricsUpsert() string {
	args := make([]string, len(windowMetricColumns))
	var updates []string
	for i, col := range windowMetricColumns {
		args[i] = fmt.Sprintf("$%d", i+1)
		if i >= numericFrom && i < numericTo {
			args[i] += "::numeric"
		}
		if i >= 3 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	updates = append(updates, "updated_at = now()")

	return fmt.Sprintf(`INSERT INTO pool_window_metrics (%s, created_at, updated_at)
VALUES (%s, now(), now())
ON CONFLICT (pool, window_size_seconds, window_start_ts) DO UPDATE SET %s`,
		strings.Join(windowMetricColumns, ", "),
		strings.Join(args, ", "),
		strings.Join(updates, ", "))
}

// UpsertWindowMetrics writes one row per (pool, window size, window start),
// replacing earlier values for the same window.
func (s *Store) UpsertWindowMetrics(ctx context.Context, rows []model.PoolWindowMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(upsertWindowMetricsSQL,
			m.Pool.Hex(), m.WindowSizeSecs, m.WindowStart,
			m.WindowEnd, int64(m.SwapCount),
			m.VolumeA, m.VolumeB, m.FeeA, m.FeeB, m.ProtocolFeeA, m.ProtocolFeeB,
			m.FeeRateA, m.FeeRateB, m.TVLA, m.TVLB, m.APR, m.TVLMethod,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert window metrics %s@%d: %w", rows[i].Pool.Hex(), rows[i].WindowStart.Unix(), err)
		}
	}
	return nil
}

// LoadState reads the progress checkpoint stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, errors.New("empty state name")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM aggregate_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load state %s: %w", name, err)
	}
	return ts, true, nil
}

// SaveState records ts as the progress checkpoint for name.
func (s *Store) SaveState(ctx context.Context, name string, ts int64) error {
	if name == "" {
		return errors.New("empty state name")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregate_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	if err != nil {
		return fmt.Errorf("save state %s: %w", name, err)
	}
	return nil
}
