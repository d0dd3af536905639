package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ratewatcher", cfg.App.Name)
	assert.Equal(t, "https://rest.coinapi.io/v1", cfg.Feed.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Feed.RequestTimeout)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.False(t, cfg.Scheduler.ExclusiveChecks)
	assert.Equal(t, time.Minute, cfg.Recovery.RescanInterval)
	assert.Equal(t, 10*time.Minute, cfg.Notifier.RetryBackoff)
	assert.Zero(t, cfg.Notifier.MaxAttempts)
	assert.Equal(t, 587, cfg.Notifier.SMTP.Port)
	assert.Equal(t, 100000, cfg.Export.MaxDataPoints)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  environment: production
scheduler:
  workers: 8
  poll_interval: 30s
notifier:
  retry_backoff: 5m
  webhook:
    enabled: true
    url: https://hooks.example.com/alerts
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Notifier.RetryBackoff)
	assert.True(t, cfg.Notifier.Webhook.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  workers: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.workers")
}

func TestValidateEnabledSinksNeedTargets(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Notifier.SMTP.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Notifier.SMTP.Host = "mail.example.com"
	cfg.Notifier.SMTP.From = "alerts@example.com"
	require.NoError(t, cfg.Validate())

	cfg.Notifier.Webhook.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 1000}}
	assert.Equal(t, 1000, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 50, cfg.ResolveMaxPoints(50))
}
