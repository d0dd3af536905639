package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rate-alerts/internal/alerting"
	"rate-alerts/internal/config"
	"rate-alerts/internal/feed"
	"rate-alerts/internal/monitor"
	"rate-alerts/internal/rates"
	"rate-alerts/internal/schedule"
	"rate-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() *feed.Client {
	return feed.NewClient(feed.Options{
		BaseURL:   a.Config.Feed.BaseURL,
		APIKey:    a.Config.Feed.APIKey,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier

	if a.Config.Notifier.SMTP.Enabled {
		cfg := a.Config.Notifier.SMTP
		notifiers = append(notifiers, alerting.NewSMTPNotifier(alerting.SMTPOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
		}, a.Logger))
	}

	if a.Config.Notifier.Webhook.Enabled {
		cfg := a.Config.Notifier.Webhook
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.URL, cfg.Secret, 10*time.Second, a.Logger))
	}

	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("no notification sinks enabled; matched alerts will only be logged")
	}

	dispatcher := alerting.NewDispatcher(notifiers, alerting.RetryPolicy{
		Backoff:     a.Config.Notifier.RetryBackoff,
		MaxAttempts: a.Config.Notifier.MaxAttempts,
	}, store, a.Logger)

	cache := rates.NewCache(a.newFeed(), a.Logger)
	queue := schedule.NewQueue(a.Logger)

	var locker storage.AdvisoryLocker
	if a.Config.Scheduler.ExclusiveChecks {
		locker = store
	}

	var disp monitor.NotificationDispatcher
	if len(notifiers) > 0 {
		disp = dispatcher
	}

	svc := monitor.New(monitor.Options{
		Workers:        a.Config.Scheduler.Workers,
		PollInterval:   a.Config.Scheduler.PollInterval,
		RescanInterval: a.Config.Recovery.RescanInterval,
	}, queue, store, store, cache, disp, locker, a.Logger)

	a.Logger.Info().Msg("starting alert monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert monitoring service stopped")
	return nil
}

// CreateOptions hold user input for alert creation.
type CreateOptions struct {
	RecipientName  string
	RecipientEmail string
	BaseCurrency   string
	QuoteCurrency  string
	Threshold      string
	EvolutionRate  string
	Period         time.Duration
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit         int
	Notifications bool
	Samples       bool
}

// ExportOptions hold parameters for exporting observed pair rates.
type ExportOptions struct {
	BaseCurrency  string
	QuoteCurrency string
	From          *time.Time
	To            *time.Time
	PNGPath       string
	CSVPath       string
	MaxPoints     int
}

// SimulateOptions describe a hypothetical alert and rate to evaluate.
type SimulateOptions struct {
	BaseCurrency  string
	QuoteCurrency string
	Threshold     string
	EvolutionRate string
	Period        time.Duration
	StartingValue string
	BasePriceUSD  string
	QuotePriceUSD string
}
