package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rate-alerts/internal/app"
)

var (
	showLimit         int
	showNotifications bool
	showSamples       bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display alerts, delivered notifications, or observed rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showNotifications && showSamples {
			return fmt.Errorf("--notifications and --samples are mutually exclusive")
		}

		opts := app.ShowOptions{
			Limit:         showLimit,
			Notifications: showNotifications,
			Samples:       showSamples,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showNotifications, "notifications", false, "Show delivered notifications instead of alerts")
	showCmd.Flags().BoolVar(&showSamples, "samples", false, "Show observed pair rates instead of alerts")
}
