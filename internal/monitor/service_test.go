package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rate-alerts/internal/rates"
	"rate-alerts/internal/schedule"
	"rate-alerts/internal/storage"
)

type resetCall struct {
	id            uuid.UUID
	periodStart   time.Time
	startingValue decimal.Decimal
}

type fakeAlertStore struct {
	mu            sync.Mutex
	alerts        map[uuid.UUID]storage.Alert
	getErr        error
	deactivateErr error
	deactivated   []uuid.UUID
	resets        []resetCall
}

func newFakeAlertStore(alerts ...storage.Alert) *fakeAlertStore {
	s := &fakeAlertStore{alerts: make(map[uuid.UUID]storage.Alert)}
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return s
}

func (s *fakeAlertStore) GetAlert(_ context.Context, id uuid.UUID) (storage.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return storage.Alert{}, s.getErr
	}
	alert, ok := s.alerts[id]
	if !ok {
		return storage.Alert{}, storage.ErrNotFound
	}
	return alert, nil
}

func (s *fakeAlertStore) ListActiveAlerts(context.Context) ([]storage.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Alert
	for _, a := range s.alerts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAlertStore) ListAlerts(context.Context, int) ([]storage.Alert, error) {
	return s.ListActiveAlerts(context.Background())
}

func (s *fakeAlertStore) CreateAlert(_ context.Context, alert storage.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.ID] = alert
	return nil
}

func (s *fakeAlertStore) DeactivateAlert(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deactivateErr != nil {
		return s.deactivateErr
	}
	alert, ok := s.alerts[id]
	if !ok {
		return storage.ErrNotFound
	}
	alert.IsActive = false
	s.alerts[id] = alert
	s.deactivated = append(s.deactivated, id)
	return nil
}

func (s *fakeAlertStore) ResetWindow(_ context.Context, id uuid.UUID, periodStart time.Time, startingValue decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || !alert.IsActive {
		return storage.ErrNotFound
	}
	alert.PeriodStart = periodStart
	alert.StartingValue = startingValue
	s.alerts[id] = alert
	s.resets = append(s.resets, resetCall{id: id, periodStart: periodStart, startingValue: startingValue})
	return nil
}

func (s *fakeAlertStore) get(id uuid.UUID) storage.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[id]
}

type fakeSampleStore struct {
	mu      sync.Mutex
	samples []storage.RateSample
}

func (s *fakeSampleStore) InsertRateSample(_ context.Context, sample storage.RateSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *fakeSampleStore) ListSamplesBetween(context.Context, string, string, time.Time, time.Time) ([]storage.RateSample, error) {
	return nil, nil
}

func (s *fakeSampleStore) ListRecentSamples(context.Context, int) ([]storage.RateSample, error) {
	return nil, nil
}

type fakeDispatcher struct {
	fired chan storage.Alert
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{fired: make(chan storage.Alert, 8)}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, alert storage.Alert) error {
	d.fired <- alert
	return nil
}

type priceSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func (p *priceSource) FetchPrices(_ context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]decimal.Decimal, len(currencies))
	for _, code := range currencies {
		if price, ok := p.prices[code]; ok {
			out[code] = price
		}
	}
	return out, nil
}

type fixture struct {
	svc        *Service
	queue      *schedule.Queue
	store      *fakeAlertStore
	samples    *fakeSampleStore
	dispatcher *fakeDispatcher
	source     *priceSource
}

func newFixture(t *testing.T, alerts ...storage.Alert) *fixture {
	t.Helper()

	store := newFakeAlertStore(alerts...)
	samples := &fakeSampleStore{}
	dispatcher := newFakeDispatcher()
	source := &priceSource{prices: map[string]decimal.Decimal{}}
	queue := schedule.NewQueue(zerolog.Nop())
	cache := rates.NewCache(source, zerolog.Nop())

	svc := New(Options{Workers: 1, PollInterval: time.Minute}, queue, store, samples, cache, dispatcher, nil, zerolog.Nop())
	return &fixture{svc: svc, queue: queue, store: store, samples: samples, dispatcher: dispatcher, source: source}
}

func (f *fixture) setPrice(t *testing.T, code, value string) {
	t.Helper()
	f.source.mu.Lock()
	defer f.source.mu.Unlock()
	f.source.prices[code] = dec(t, value)
}

func awaitDispatch(t *testing.T, d *fakeDispatcher) storage.Alert {
	t.Helper()
	select {
	case alert := <-d.fired:
		return alert
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification dispatch")
		return storage.Alert{}
	}
}

func TestCheckMatchedDeactivatesAndDispatches(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.setPrice(t, "BTC", "51000")
	f.setPrice(t, "USD", "1")

	f.svc.Check(context.Background(), alert.ID)
	f.svc.dispatchWG.Wait()

	fired := awaitDispatch(t, f.dispatcher)
	assert.Equal(t, alert.ID, fired.ID)
	assert.False(t, f.store.get(alert.ID).IsActive)
	assert.Equal(t, []uuid.UUID{alert.ID}, f.store.deactivated)
	// a matched alert is never re-armed
	assert.Zero(t, f.queue.Len())
}

func TestCheckPendingReArmsThresholdAlert(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.setPrice(t, "BTC", "49000")
	f.setPrice(t, "USD", "1")

	f.svc.Check(context.Background(), alert.ID)

	assert.True(t, f.queue.Pending(alert.ID))
	assert.True(t, f.store.get(alert.ID).IsActive)
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckUnknownAlertStopsChain(t *testing.T) {
	f := newFixture(t)

	f.svc.Check(context.Background(), uuid.New())

	assert.Zero(t, f.queue.Len())
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckInactiveAlertStopsChain(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	alert.IsActive = false
	f := newFixture(t, alert)

	f.svc.Check(context.Background(), alert.ID)

	assert.Zero(t, f.queue.Len())
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckStoreErrorReArmsAtPollInterval(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.store.getErr = errors.New("connection refused")

	f.svc.Check(context.Background(), alert.ID)

	assert.True(t, f.queue.Pending(alert.ID))
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckFeedErrorSkipsEvaluation(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.source.mu.Lock()
	f.source.err = errors.New("feed down")
	f.source.mu.Unlock()

	f.svc.Check(context.Background(), alert.ID)

	// the alert is left untouched and the chain keeps going
	assert.True(t, f.store.get(alert.ID).IsActive)
	assert.True(t, f.queue.Pending(alert.ID))
	assert.Empty(t, f.dispatcher.fired)
	assert.Empty(t, f.samples.samples)
}

func TestCheckUnknownRateSkipsEvaluation(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.setPrice(t, "BTC", "51000")
	// no USD price: the pair rate cannot be derived

	f.svc.Check(context.Background(), alert.ID)

	assert.True(t, f.store.get(alert.ID).IsActive)
	assert.True(t, f.queue.Pending(alert.ID))
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckWindowResetPersistsAndReArms(t *testing.T) {
	alert := windowAlert(t, "5", "100", time.Hour, time.Now().Add(-2*time.Hour))
	f := newFixture(t, alert)
	f.setPrice(t, "ETH", "102")
	f.setPrice(t, "BTC", "1")

	f.svc.Check(context.Background(), alert.ID)

	require.Len(t, f.store.resets, 1)
	reset := f.store.resets[0]
	assert.Equal(t, alert.ID, reset.id)
	assert.True(t, dec(t, "102").Equal(reset.startingValue), "window restarts from the observed rate")
	assert.WithinDuration(t, time.Now(), reset.periodStart, 5*time.Second)

	assert.True(t, f.queue.Pending(alert.ID))
	assert.True(t, f.store.get(alert.ID).IsActive)
	assert.Empty(t, f.dispatcher.fired)
}

func TestCheckWindowMatchWinsPastDeadline(t *testing.T) {
	alert := windowAlert(t, "5", "100", time.Hour, time.Now().Add(-2*time.Hour))
	f := newFixture(t, alert)
	f.setPrice(t, "ETH", "106")
	f.setPrice(t, "BTC", "1")

	f.svc.Check(context.Background(), alert.ID)
	f.svc.dispatchWG.Wait()

	fired := awaitDispatch(t, f.dispatcher)
	assert.Equal(t, alert.ID, fired.ID)
	assert.Empty(t, f.store.resets)
	assert.False(t, f.store.get(alert.ID).IsActive)
}

func TestCheckDeactivateFailureRetriesWithoutDispatch(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.setPrice(t, "BTC", "51000")
	f.setPrice(t, "USD", "1")
	f.store.deactivateErr = errors.New("connection refused")

	f.svc.Check(context.Background(), alert.ID)

	// no notification until the deactivation is durable
	assert.Empty(t, f.dispatcher.fired)
	assert.True(t, f.queue.Pending(alert.ID))
}

func TestCheckRecordsRateSample(t *testing.T) {
	alert := thresholdAlert(t, "50000", "40000")
	f := newFixture(t, alert)
	f.setPrice(t, "BTC", "49000")
	f.setPrice(t, "USD", "1")

	f.svc.Check(context.Background(), alert.ID)

	require.Len(t, f.samples.samples, 1)
	sample := f.samples.samples[0]
	assert.Equal(t, "BTC", sample.BaseCurrency)
	assert.Equal(t, "USD", sample.QuoteCurrency)
	assert.True(t, dec(t, "49000").Equal(sample.Rate))
}

func TestBootstrapArmsActiveAlerts(t *testing.T) {
	active := thresholdAlert(t, "50000", "40000")
	inactive := thresholdAlert(t, "100", "120")
	inactive.IsActive = false
	f := newFixture(t, active, inactive)

	require.NoError(t, f.svc.Bootstrap(context.Background()))

	assert.Equal(t, 1, f.queue.Len())
	assert.True(t, f.queue.Pending(active.ID))
	assert.False(t, f.queue.Pending(inactive.ID))
}

func TestRescanSkipsAlertsWithPendingChecks(t *testing.T) {
	armed := thresholdAlert(t, "50000", "40000")
	fresh := thresholdAlert(t, "60000", "40000")
	f := newFixture(t, armed, fresh)

	f.svc.ArmAlert(armed.ID, time.Hour)
	require.Equal(t, 1, f.queue.Len())

	f.svc.rescan(context.Background())

	assert.Equal(t, 2, f.queue.Len())
	assert.True(t, f.queue.Pending(fresh.ID))
}

func TestAlertLockKeyStable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, AlertLockKey(id), AlertLockKey(id))
	assert.NotEqual(t, AlertLockKey(id), AlertLockKey(uuid.New()))
}
