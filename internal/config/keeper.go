package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// KeeperConfig holds configuration for the keeper daemon.
type KeeperConfig struct {
	Engine       EngineConfig
	PGDSN        string
	RPCURL       string
	Journal      string
	Executor     string
	Interval     time.Duration
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	Rate         float64
	MetricsAddr  string
}

// LoadKeeper merges config file, environment variables, and flags into KeeperConfig.
func LoadKeeper(cfgFile string, flags *pflag.FlagSet) (KeeperConfig, error) {
	v, err := load(cfgFile, flags)
	if err != nil {
		return KeeperConfig{}, err
	}
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("interval", 15*time.Second)
	v.SetDefault("batch-size", 500)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rate", 20.0)
	v.SetDefault("metrics-addr", ":9102")

	cfg := KeeperConfig{
		Engine:       engineConfig(v),
		PGDSN:        v.GetString("pg-dsn"),
		RPCURL:       v.GetString("rpc"),
		Journal:      v.GetString("journal"),
		Executor:     v.GetString("executor"),
		Interval:     v.GetDuration("interval"),
		BatchSize:    v.GetInt("batch-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Rate:         v.GetFloat64("rate"),
		MetricsAddr:  v.GetString("metrics-addr"),
	}
	if cfg.Interval <= 0 {
		return KeeperConfig{}, fmt.Errorf("interval must be positive")
	}
	if cfg.Rate < 0 {
		return KeeperConfig{}, fmt.Errorf("rate must not be negative")
	}
	return cfg, nil
}
