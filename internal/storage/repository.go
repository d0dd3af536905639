package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	alertColumns = `id,
        recipient_name,
        recipient_email,
        base_currency,
        quote_currency,
        threshold,
        evolution_rate,
        period_seconds,
        starting_value,
        period_start,
        is_active,
        created_at`

	getAlertSQL = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1;`

	listActiveAlertsSQL = `SELECT ` + alertColumns + ` FROM alerts
    WHERE is_active
    ORDER BY created_at;`

	listAlertsSQL = `SELECT ` + alertColumns + ` FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        id,
        recipient_name,
        recipient_email,
        base_currency,
        quote_currency,
        threshold,
        evolution_rate,
        period_seconds,
        starting_value,
        period_start,
        is_active,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	deactivateAlertSQL = `UPDATE alerts SET is_active = FALSE WHERE id = $1;`

	resetWindowSQL = `UPDATE alerts
    SET period_start = $2, starting_value = $3
    WHERE id = $1 AND is_active;`

	insertNotificationSQL = `INSERT INTO notifications (
        alert_id,
        recipient,
        subject,
        attempts,
        delivered_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, alert_id, recipient, subject, attempts, delivered_at;`

	listRecentNotificationsSQL = `SELECT
        id,
        alert_id,
        recipient,
        subject,
        attempts,
        delivered_at
    FROM notifications
    ORDER BY delivered_at DESC
    LIMIT $1;`

	insertRateSampleSQL = `INSERT INTO rate_samples (
        observed_at,
        base_currency,
        quote_currency,
        rate
    ) VALUES (
        $1,$2,$3,$4
    );`

	listSamplesBetweenSQL = `SELECT
        observed_at,
        base_currency,
        quote_currency,
        rate
    FROM rate_samples
    WHERE base_currency = $1
      AND quote_currency = $2
      AND observed_at >= $3
      AND observed_at < $4
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT
        observed_at,
        base_currency,
        quote_currency,
        rate
    FROM rate_samples
    ORDER BY observed_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines the persistence contract the engine depends on.
type AlertStore interface {
	GetAlert(ctx context.Context, id uuid.UUID) (Alert, error)
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]Alert, error)
	CreateAlert(ctx context.Context, alert Alert) error
	DeactivateAlert(ctx context.Context, id uuid.UUID) error
	ResetWindow(ctx context.Context, id uuid.UUID, periodStart time.Time, startingValue decimal.Decimal) error
}

// NotificationStore defines operations for notification auditing.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// RateSampleStore defines operations for observed-rate history.
type RateSampleStore interface {
	InsertRateSample(ctx context.Context, sample RateSample) error
	ListSamplesBetween(ctx context.Context, base, quote string, from, to time.Time) ([]RateSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]RateSample, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to alerts, notifications, and rate samples.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// GetAlert loads a single alert by id.
func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	row := pool.QueryRow(ctx, getAlertSQL, id)
	alert, scanErr := scanAlert(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Alert{}, ErrNotFound
		}
		return Alert{}, scanErr
	}
	return alert, nil
}

// ListActiveAlerts returns every alert still marked active.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListAlerts returns the most recently created alerts.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// CreateAlert persists a new alert.
func (s *Store) CreateAlert(ctx context.Context, alert Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var threshold, evolution interface{}
	if alert.Threshold != nil {
		threshold = alert.Threshold.String()
	}
	if alert.EvolutionRate != nil {
		evolution = alert.EvolutionRate.String()
	}

	var periodSeconds interface{}
	if alert.Period != nil {
		periodSeconds = int64(alert.Period.Seconds())
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.RecipientName,
		alert.RecipientEmail,
		alert.BaseCurrency,
		alert.QuoteCurrency,
		threshold,
		evolution,
		periodSeconds,
		alert.StartingValue.String(),
		alert.PeriodStart,
		alert.IsActive,
		alert.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("create alert: %w", execErr)
	}
	return nil
}

// DeactivateAlert marks an alert inactive so it is never rechecked.
func (s *Store) DeactivateAlert(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("deactivate alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetWindow restarts the rolling window of a window-mode alert.
func (s *Store) ResetWindow(ctx context.Context, id uuid.UUID, periodStart time.Time, startingValue decimal.Decimal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, resetWindowSQL, id, periodStart, startingValue.String())
	if execErr != nil {
		return fmt.Errorf("reset window: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertNotification records a delivered notification.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		rec.AlertID,
		rec.Recipient,
		rec.Subject,
		rec.Attempts,
		rec.DeliveredAt,
	)

	var out NotificationRecord
	if scanErr := row.Scan(
		&out.ID,
		&out.AlertID,
		&out.Recipient,
		&out.Subject,
		&out.Attempts,
		&out.DeliveredAt,
	); scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", scanErr)
	}
	return out, nil
}

// ListRecentNotifications lists the most recently delivered notifications.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.Recipient,
			&rec.Subject,
			&rec.Attempts,
			&rec.DeliveredAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertRateSample persists one observed pair rate.
func (s *Store) InsertRateSample(ctx context.Context, sample RateSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertRateSampleSQL,
		sample.ObservedAt,
		sample.BaseCurrency,
		sample.QuoteCurrency,
		sample.Rate.String(),
	)
	if execErr != nil {
		return fmt.Errorf("insert rate sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists observed rates for a pair within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, base, quote string, from, to time.Time) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, base, quote, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent observed rates across all pairs.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]RateSample, error) {
	samples := make([]RateSample, 0, capacity)
	for rows.Next() {
		var (
			sample  RateSample
			rateStr string
		)
		if err := rows.Scan(
			&sample.ObservedAt,
			&sample.BaseCurrency,
			&sample.QuoteCurrency,
			&rateStr,
		); err != nil {
			return nil, err
		}
		rate, convErr := decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse rate: %w", convErr)
		}
		sample.Rate = rate
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert         Alert
		thresholdStr  sql.NullString
		evolutionStr  sql.NullString
		periodSeconds sql.NullInt64
		startingStr   string
	)

	if err := row.Scan(
		&alert.ID,
		&alert.RecipientName,
		&alert.RecipientEmail,
		&alert.BaseCurrency,
		&alert.QuoteCurrency,
		&thresholdStr,
		&evolutionStr,
		&periodSeconds,
		&startingStr,
		&alert.PeriodStart,
		&alert.IsActive,
		&alert.CreatedAt,
	); err != nil {
		return Alert{}, err
	}

	starting, err := decimal.NewFromString(startingStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse starting value: %w", err)
	}
	alert.StartingValue = starting

	if thresholdStr.Valid {
		threshold, convErr := decimal.NewFromString(thresholdStr.String)
		if convErr != nil {
			return Alert{}, fmt.Errorf("parse threshold: %w", convErr)
		}
		alert.Threshold = &threshold
	}
	if evolutionStr.Valid {
		evolution, convErr := decimal.NewFromString(evolutionStr.String)
		if convErr != nil {
			return Alert{}, fmt.Errorf("parse evolution rate: %w", convErr)
		}
		alert.EvolutionRate = &evolution
	}
	if periodSeconds.Valid {
		period := time.Duration(periodSeconds.Int64) * time.Second
		alert.Period = &period
	}

	return alert, nil
}
