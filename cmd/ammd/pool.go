package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"ammcore/internal/amm"
	"ammcore/internal/clock"
	"ammcore/internal/config"
	"ammcore/internal/engine"
	"ammcore/internal/model"
	"ammcore/internal/storage/postgres"
)

type poolOutput struct {
	Pool      model.Pool       `json:"pool"`
	Fees      engine.FeeInfo   `json:"fees"`
	OrderBook *model.OrderBook `json:"order_book,omitempty"`
	Quote     *amm.Quote       `json:"quote,omitempty"`
}

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Show pool state, fees and an optional quote",
		RunE:  runPool,
	}
	addEngineFlags(cmd)
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("token-a", "", "token A address")
	cmd.Flags().String("token-b", "", "token B address")
	cmd.Flags().String("side", "buy", "quote side")
	cmd.Flags().Uint64("amount-in", 0, "quote input amount (0 skips the quote)")
	return cmd
}

func runPool(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadKeeper(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	engCfg, err := cfg.Engine.Engine()
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	tokenA, _ := cmd.Flags().GetString("token-a")
	tokenB, _ := cmd.Flags().GetString("token-b")
	if !common.IsHexAddress(tokenA) || !common.IsHexAddress(tokenB) {
		return fmt.Errorf("token-a and token-b must be hex addresses")
	}
	pair := model.PairID(common.HexToAddress(tokenA), common.HexToAddress(tokenB))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	eng, err := engine.New(engCfg, engine.Deps{Store: store, Ledger: postgres.NewLedger(store), Clock: clock.System{}}, nil)
	if err != nil {
		return err
	}

	var out poolOutput
	if out.Pool, err = eng.Pool(ctx, pair); err != nil {
		return err
	}
	if out.Fees, err = eng.FeeInfo(ctx, pair); err != nil {
		return err
	}
	if book, err := eng.OrderBook(ctx, pair); err == nil {
		out.OrderBook = &book
	}

	amountIn, _ := cmd.Flags().GetUint64("amount-in")
	if amountIn > 0 {
		sideFlag, _ := cmd.Flags().GetString("side")
		side, err := model.ParseSide(sideFlag)
		if err != nil {
			return err
		}
		quote, err := eng.Quote(ctx, pair, side, amountIn)
		if err != nil {
			return err
		}
		out.Quote = &quote
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
