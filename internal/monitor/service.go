// Package monitor orchestrates per-alert check cycles: load the alert,
// refresh the rate cache, evaluate, then either fire and deactivate or
// re-arm with a computed delay.
package monitor

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rate-alerts/internal/rates"
	"rate-alerts/internal/schedule"
	"rate-alerts/internal/storage"
)

// NotificationDispatcher delivers a fired-alert notification, retrying as
// needed. The alert is already inactive when Dispatch is invoked, so retries
// can only redeliver, never re-trigger evaluation.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, alert storage.Alert) error
}

// Options tune the monitoring service.
type Options struct {
	// Workers is the number of concurrent check cycles.
	Workers int
	// PollInterval is the re-arm delay for threshold-mode alerts.
	PollInterval time.Duration
	// RescanInterval re-runs the recovery sweep to pick up alerts created
	// while the service is running. Zero disables the sweep.
	RescanInterval time.Duration
}

// Service drives the alert monitoring engine.
type Service struct {
	opts       Options
	queue      *schedule.Queue
	alerts     storage.AlertStore
	samples    storage.RateSampleStore
	cache      *rates.Cache
	dispatcher NotificationDispatcher
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger

	dispatchWG sync.WaitGroup
}

// New constructs the monitoring service. samples and locker may be nil;
// rate-sample history is then skipped and checks run without an exclusivity
// lease.
func New(opts Options, queue *schedule.Queue, alerts storage.AlertStore, samples storage.RateSampleStore, cache *rates.Cache, dispatcher NotificationDispatcher, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}

	return &Service{
		opts:       opts,
		queue:      queue,
		alerts:     alerts,
		samples:    samples,
		cache:      cache,
		dispatcher: dispatcher,
		locker:     locker,
		logger:     logger.With().Str("component", "monitor").Logger(),
	}
}

// ArmAlert schedules a check cycle for the alert after the given delay.
func (s *Service) ArmAlert(alertID uuid.UUID, delay time.Duration) {
	s.queue.Schedule(alertID, delay)
}

// Run re-arms all active alerts, then blocks executing check cycles until ctx
// is cancelled. In-flight notification dispatches are waited for on the way
// out.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}

	if s.opts.RescanInterval > 0 {
		go s.rescanLoop(ctx)
	}

	err := s.queue.Run(ctx, s.opts.Workers, s.Check)
	s.dispatchWG.Wait()
	return err
}

// Check executes one check cycle. It never returns an error: every failure is
// recovered locally by logging and re-arming, per the engine's error policy.
func (s *Service) Check(ctx context.Context, alertID uuid.UUID) {
	logger := s.logger.With().Stringer("alert_id", alertID).Logger()

	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug().Msg("alert deleted; check chain stops")
			return
		}
		logger.Error().Err(err).Msg("failed to load alert")
		s.queue.Schedule(alertID, s.opts.PollInterval)
		return
	}
	if !alert.IsActive {
		logger.Debug().Msg("alert deactivated; check chain stops")
		return
	}

	if s.locker != nil {
		unlock, acquired, lockErr := s.locker.TryAdvisoryLock(ctx, AlertLockKey(alertID))
		if lockErr != nil {
			logger.Error().Err(lockErr).Msg("failed to acquire check lease")
			s.queue.Schedule(alertID, s.defaultDelay(&alert))
			return
		}
		if !acquired {
			logger.Debug().Msg("check lease held elsewhere; skipping cycle")
			return
		}
		defer unlock()
	}

	if err := s.cache.Refresh(ctx, alert.BaseCurrency, alert.QuoteCurrency); err != nil {
		// Never evaluate against prices of unknown age: skip this cycle.
		logger.Warn().Err(err).Str("pair", alert.Pair()).Msg("rate refresh failed; skipping evaluation")
		s.queue.Schedule(alertID, s.defaultDelay(&alert))
		return
	}

	rate, ok := s.cache.Rate(alert.BaseCurrency, alert.QuoteCurrency)
	if !ok {
		logger.Warn().Str("pair", alert.Pair()).Msg("pair rate unknown; skipping evaluation")
		s.queue.Schedule(alertID, s.defaultDelay(&alert))
		return
	}

	now := time.Now().UTC()

	if s.samples != nil {
		sample := storage.RateSample{
			ObservedAt:    now,
			BaseCurrency:  alert.BaseCurrency,
			QuoteCurrency: alert.QuoteCurrency,
			Rate:          rate,
		}
		if err := s.samples.InsertRateSample(ctx, sample); err != nil {
			logger.Error().Err(err).Msg("failed to persist rate sample")
		}
	}

	outcome := Evaluate(&alert, rate, now)
	logger.Debug().Str("pair", alert.Pair()).Str("rate", rate.String()).Stringer("outcome", outcome).Msg("alert evaluated")

	switch outcome {
	case OutcomeMatched:
		if err := s.alerts.DeactivateAlert(ctx, alertID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Debug().Msg("alert deleted mid-cycle")
				return
			}
			logger.Error().Err(err).Msg("failed to deactivate matched alert; retrying cycle")
			s.queue.Schedule(alertID, s.opts.PollInterval)
			return
		}
		logger.Info().Str("pair", alert.Pair()).Str("rate", rate.String()).Msg("alert matched")
		s.dispatch(ctx, alert)

	case OutcomeWindowReset:
		if err := s.alerts.ResetWindow(ctx, alertID, now, rate); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error().Err(err).Msg("failed to persist window reset")
		}
		s.queue.Schedule(alertID, *alert.Period)

	default:
		s.queue.Schedule(alertID, s.defaultDelay(&alert))
	}
}

// defaultDelay is the re-arm delay when no match happened: the full period
// for window-mode alerts, the fixed poll interval for threshold mode.
func (s *Service) defaultDelay(alert *storage.Alert) time.Duration {
	if alert.IsWindowMode() {
		return *alert.Period
	}
	return s.opts.PollInterval
}

func (s *Service) dispatch(ctx context.Context, alert storage.Alert) {
	if s.dispatcher == nil {
		s.logger.Warn().Stringer("alert_id", alert.ID).Msg("no dispatcher configured; notification dropped")
		return
	}

	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
			s.logger.Error().Err(err).Stringer("alert_id", alert.ID).Msg("notification dispatch abandoned")
		}
	}()
}

// AlertLockKey maps an alert id onto a postgres advisory lock key.
func AlertLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(id[:])
	return int64(h.Sum64())
}
