package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/chain"
	"ammcore/internal/clock"
	"ammcore/internal/config"
	"ammcore/internal/engine"
	"ammcore/internal/keeper"
	"ammcore/internal/metrics"
	"ammcore/internal/storage"
	"ammcore/internal/storage/postgres"
)

func newKeeperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keeper",
		Short: "Execute due limit and DCA orders",
		RunE:  runKeeper,
	}
	addEngineFlags(cmd)
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("rpc", "", "EVM RPC URL used as the clock (system time when empty)")
	cmd.Flags().String("journal", "./data/events.jsonl", "settlement event journal JSONL")
	cmd.Flags().String("executor", "", "keeper account recorded on executions")
	cmd.Flags().Duration("interval", 15*time.Second, "time between sweeps")
	cmd.Flags().Int("batch-size", 500, "maximum orders of each kind per sweep")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts on storage errors")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Float64("rate", 20, "maximum executions per second (0 is unlimited)")
	cmd.Flags().String("metrics-addr", ":9102", "metrics listen address (empty disables)")
	return cmd
}

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadKeeper(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	engCfg, err := cfg.Engine.Engine()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Engine.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if !common.IsHexAddress(cfg.Executor) {
		return fmt.Errorf("executor must be a hex address, got %q", cfg.Executor)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	var clk clock.Clock = clock.System{}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		chainID, err := chainClient.ChainID(ctx)
		if err != nil {
			return err
		}
		logger.Info("chain clock", zap.String("chain_id", chainID.String()))
		clk = clock.NewChain(chainClient)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	eng, err := engine.New(engCfg, engine.Deps{
		Store:   store,
		Ledger:  postgres.NewLedger(store),
		Clock:   clk,
		Journal: storage.NewJSONLJournal(cfg.Journal),
		Metrics: m,
	}, logger)
	if err != nil {
		return err
	}

	srv := metrics.NewServer(cfg.MetricsAddr, reg)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(shutdownCtx)
	}()

	runner := keeper.NewRunner(keeper.Config{
		Executor:     common.HexToAddress(cfg.Executor),
		Interval:     cfg.Interval,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Rate:         cfg.Rate,
	}, eng, store, clk, m, logger)

	logger.Info("keeper start",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("chain_clock", cfg.RPCURL != ""),
		zap.String("journal", cfg.Journal),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Uint16("max_price_impact_bps", engCfg.MaxPriceImpactBps),
		zap.Bool("allow_partial_fills", engCfg.AllowPartialFills),
	)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
