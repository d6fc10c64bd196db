package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ammcore/internal/amm"
	"ammcore/internal/config"
	"ammcore/internal/model"
)

type quoteOutput struct {
	Side      string    `json:"side"`
	SpotPrice uint64    `json:"spot_price"`
	Quote     amm.Quote `json:"quote"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview a swap against the given reserves",
		RunE:  runQuote,
	}
	addEngineFlags(cmd)
	cmd.Flags().Uint64("reserve-a", 0, "token A reserve")
	cmd.Flags().Uint64("reserve-b", 0, "token B reserve")
	cmd.Flags().Uint16("fee-bps", 30, "pool fee rate in basis points")
	cmd.Flags().String("side", "buy", "buy spends token A, sell spends token B")
	cmd.Flags().Uint64("amount-in", 0, "input amount")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEngine(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	engCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	reserveA, _ := cmd.Flags().GetUint64("reserve-a")
	reserveB, _ := cmd.Flags().GetUint64("reserve-b")
	feeBps, _ := cmd.Flags().GetUint16("fee-bps")
	amountIn, _ := cmd.Flags().GetUint64("amount-in")
	sideFlag, _ := cmd.Flags().GetString("side")

	side, err := model.ParseSide(sideFlag)
	if err != nil {
		return err
	}
	pool := model.Pool{ReserveA: reserveA, ReserveB: reserveB}
	reserveIn, reserveOut := pool.Reserves(side)

	quote, err := amm.QuoteSwap(amountIn, reserveIn, reserveOut, feeBps, engCfg.QuoteSlippageBps)
	if err != nil {
		return fmt.Errorf("quote swap: %w", err)
	}
	spot, err := amm.SpotPrice(reserveA, reserveB)
	if err != nil {
		return fmt.Errorf("spot price: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(quoteOutput{Side: side.String(), SpotPrice: spot, Quote: quote})
}
