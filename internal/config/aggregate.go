package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig configures the journal aggregator.
type AggregateConfig struct {
	RPCURL    string
	Input     string
	Window    time.Duration
	PGDSN     string
	BatchSize int
	StateFile string
	// RecomputeFrom is a unix timestamp; zero resumes from saved progress.
	RecomputeFrom int64
	LogLevel      string
}

// WindowSeconds is the window length in whole seconds.
func (c AggregateConfig) WindowSeconds() int64 {
	return int64(c.Window / time.Second)
}

func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags)
	if err != nil {
		return AggregateConfig{}, err
	}
	v.SetDefault("in", "./data/events.jsonl")
	v.SetDefault("window", "5m")
	v.SetDefault("batch-size", 1000)

	from, err := ParseTimestamp(v.GetString("recompute-from"))
	if err != nil {
		return AggregateConfig{}, fmt.Errorf("recompute-from: %w", err)
	}
	cfg := AggregateConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         strings.TrimSpace(v.GetString("in")),
		Window:        v.GetDuration("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: from,
		LogLevel:      v.GetString("log-level"),
	}

	switch {
	case cfg.Input == "":
		return AggregateConfig{}, errors.New("journal input path is required")
	case cfg.PGDSN == "":
		return AggregateConfig{}, errors.New("pg-dsn is required")
	case cfg.Window < time.Second:
		return AggregateConfig{}, fmt.Errorf("window %s is shorter than 1s", cfg.Window)
	case cfg.BatchSize <= 0:
		return AggregateConfig{}, fmt.Errorf("batch-size must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// ParseTimestamp accepts unix seconds or RFC3339. Empty input yields zero.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither unix seconds nor RFC3339", s)
	}
	return t.Unix(), nil
}
