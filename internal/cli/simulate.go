package cli

import (
	"time"

	"github.com/spf13/cobra"

	"rate-alerts/internal/app"
)

var (
	simulateBase       string
	simulateQuote      string
	simulateThreshold  string
	simulateEvolution  string
	simulatePeriod     time.Duration
	simulateStarting   string
	simulateBasePrice  string
	simulateQuotePrice string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a hypothetical alert against given USD prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			BaseCurrency:  simulateBase,
			QuoteCurrency: simulateQuote,
			Threshold:     simulateThreshold,
			EvolutionRate: simulateEvolution,
			Period:        simulatePeriod,
			StartingValue: simulateStarting,
			BasePriceUSD:  simulateBasePrice,
			QuotePriceUSD: simulateQuotePrice,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateBase, "base", "", "Base currency code")
	simulateCmd.Flags().StringVar(&simulateQuote, "quote", "USD", "Quote currency code")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "", "Absolute rate threshold (threshold mode)")
	simulateCmd.Flags().StringVar(&simulateEvolution, "evolution-rate", "", "Percentage move to watch for (window mode)")
	simulateCmd.Flags().DurationVar(&simulatePeriod, "period", 0, "Rolling window length (window mode)")
	simulateCmd.Flags().StringVar(&simulateStarting, "starting-value", "", "Rate captured at alert creation")
	simulateCmd.Flags().StringVar(&simulateBasePrice, "base-price", "", "Current USD price of the base currency")
	simulateCmd.Flags().StringVar(&simulateQuotePrice, "quote-price", "", "Current USD price of the quote currency")

	_ = simulateCmd.MarkFlagRequired("base")
	_ = simulateCmd.MarkFlagRequired("starting-value")
	_ = simulateCmd.MarkFlagRequired("base-price")
	_ = simulateCmd.MarkFlagRequired("quote-price")
}
