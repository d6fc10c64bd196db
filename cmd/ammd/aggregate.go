package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/aggregate"
	"ammcore/internal/chain"
	"ammcore/internal/config"
	"ammcore/internal/storage/postgres"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the settlement journal into pool window metrics",
		RunE:  runAggregate,
	}
	f := cmd.Flags()
	f.String("in", "./data/events.jsonl", "settlement journal to read")
	f.String("window", "5m", "metrics window length")
	f.String("pg-dsn", "", "Postgres DSN for metrics and progress")
	f.String("rpc", "", "RPC URL used to resolve token decimals; amounts stay in base units without it")
	f.Int("batch-size", 1000, "window rows per upsert batch")
	f.String("state-file", "", "keep progress in this file instead of Postgres")
	f.String("recompute-from", "", "rebuild windows from this time (unix seconds or RFC3339)")
	f.String("log-level", "info", "debug, info, warn or error")
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	windowSeconds := cfg.WindowSeconds()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	deps := aggregate.Deps{Sink: store, Pools: store}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		deps.Decimals = chainClient
	}

	// Progress lives next to the metrics unless a local file is requested.
	var progress aggregate.StateStore = &aggregate.DBStateStore{Store: store, WindowSeconds: windowSeconds}
	if cfg.StateFile != "" {
		progress = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	}

	logger.Info("aggregating journal",
		zap.String("journal", cfg.Input),
		zap.String("pg", redactDSN(cfg.PGDSN)),
		zap.Duration("window", cfg.Window),
		zap.Bool("token_decimals", deps.Decimals != nil),
		zap.Int64("recompute_from", cfg.RecomputeFrom),
	)

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		StateStore:    progress,
	}, deps, logger)

	return agg.Run(ctx, cfg.Input)
}
