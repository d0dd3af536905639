package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"rate-alerts/internal/storage"
)

// Show prints recent alerts, delivered notifications, or observed rates.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch {
	case opts.Notifications:
		return showNotifications(ctx, store, opts.Limit)
	case opts.Samples:
		return showSamples(ctx, store, opts.Limit)
	default:
		return showAlerts(ctx, store, opts.Limit)
	}
}

func showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPair\tMode\tTarget\tStarting\tActive\tCreated (UTC)")

	for _, alert := range alerts {
		mode := "threshold"
		target := ""
		if alert.IsWindowMode() {
			mode = "window"
			target = fmt.Sprintf("%s%% / %s", alert.EvolutionRate.String(), alert.Period.String())
		} else if alert.Threshold != nil {
			target = alert.Threshold.String()
		}

		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.ID,
			alert.Pair(),
			mode,
			target,
			alert.StartingValue.StringFixed(6),
			alert.IsActive,
			alert.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

func showNotifications(ctx context.Context, store *storage.Store, limit int) error {
	records, err := store.ListRecentNotifications(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Delivered (UTC)\tAlert\tRecipient\tSubject\tAttempts")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\n",
			rec.DeliveredAt.UTC().Format(time.RFC3339),
			rec.AlertID,
			rec.Recipient,
			rec.Subject,
			rec.Attempts,
		)
	}

	return writer.Flush()
}

func showSamples(ctx context.Context, store *storage.Store, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tPair\tRate")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s/%s\t%s\n",
			sample.ObservedAt.UTC().Format(time.RFC3339),
			sample.BaseCurrency,
			sample.QuoteCurrency,
			sample.Rate.StringFixed(6),
		)
	}

	return writer.Flush()
}
