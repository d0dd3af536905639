package cli

import (
	"time"

	"github.com/spf13/cobra"

	"rate-alerts/internal/app"
)

var (
	createName      string
	createEmail     string
	createBase      string
	createQuote     string
	createThreshold string
	createEvolution string
	createPeriod    time.Duration
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new alert and capture its starting rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CreateOptions{
			RecipientName:  createName,
			RecipientEmail: createEmail,
			BaseCurrency:   createBase,
			QuoteCurrency:  createQuote,
			Threshold:      createThreshold,
			EvolutionRate:  createEvolution,
			Period:         createPeriod,
		}

		return getApp().Create(cmd.Context(), opts)
	},
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "Recipient display name")
	createCmd.Flags().StringVar(&createEmail, "email", "", "Recipient email address")
	createCmd.Flags().StringVar(&createBase, "base", "", "Base currency code")
	createCmd.Flags().StringVar(&createQuote, "quote", "USD", "Quote currency code")
	createCmd.Flags().StringVar(&createThreshold, "threshold", "", "Absolute rate threshold (threshold mode)")
	createCmd.Flags().StringVar(&createEvolution, "evolution-rate", "", "Percentage move to watch for (window mode)")
	createCmd.Flags().DurationVar(&createPeriod, "period", 0, "Rolling window length (window mode)")

	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("base")
}
