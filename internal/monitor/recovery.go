package monitor

import (
	"context"
	"fmt"
	"time"
)

// Bootstrap re-arms a check for every alert still marked active, so a crash
// or redeploy does not silently stop monitoring. Duplicate arming of an alert
// already mid-cycle is tolerated: Checking re-reads persisted state before
// acting.
func (s *Service) Bootstrap(ctx context.Context) error {
	alerts, err := s.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("recovery bootstrap: %w", err)
	}

	for _, alert := range alerts {
		s.queue.Schedule(alert.ID, 0)
	}

	s.logger.Info().Int("alerts", len(alerts)).Msg("re-armed active alerts")
	return nil
}

// rescanLoop periodically re-runs the recovery sweep so alerts created by
// another process get picked up without a restart.
func (s *Service) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rescan(ctx)
		}
	}
}

func (s *Service) rescan(ctx context.Context) {
	alerts, err := s.alerts.ListActiveAlerts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("recovery rescan failed")
		return
	}

	armed := 0
	for _, alert := range alerts {
		if s.queue.Pending(alert.ID) {
			continue
		}
		s.queue.Schedule(alert.ID, 0)
		armed++
	}

	if armed > 0 {
		s.logger.Info().Int("alerts", armed).Msg("picked up alerts without a pending check")
	}
}
