package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("CHANNEL_ID", "12345")
	t.Setenv("ADMIN_JWT_SECRET", "secret")
	t.Setenv("ICAL_URLS", "https://example.com/a.ics, webcal://example.com/b.ics")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("TEAM_NAMES", "Mighty Pucks")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "Mighty Pucks", cfg.Feeds[0].Name)
	assert.Equal(t, "Team 2", cfg.Feeds[1].Name)
	assert.Equal(t, "webcal://example.com/b.ics", cfg.Feeds[1].URL)
	assert.Equal(t, "America/Toronto", cfg.Location.String())
	assert.Equal(t, 7*24*time.Hour, cfg.PollLeadTime)
	assert.Equal(t, 24*time.Hour, cfg.ReminderLeadTime)
	assert.Equal(t, 15*time.Minute, cfg.ChangeThreshold)
	assert.Equal(t, 2*time.Hour, cfg.ChangeInterval)
	assert.Equal(t, MissingLeave, cfg.MissingPolicy)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("CHANNEL_ID", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("ICAL_URLS", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
	assert.Contains(t, err.Error(), "ICAL_URLS")
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoad_InvalidMissingPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("MISSING_GAME_POLICY", "delete")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("MISSING_GAME_POLICY", "")
	os.Unsetenv("MISSING_GAME_POLICY")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MISSING_GAME_POLICY=cancel\nCHANGE_THRESHOLD=30m\n"), 0o600))
	t.Setenv("CHANGE_THRESHOLD", "")
	os.Unsetenv("CHANGE_THRESHOLD")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MissingCancel, cfg.MissingPolicy)
	assert.Equal(t, 30*time.Minute, cfg.ChangeThreshold)
}

func TestLoad_UnparseableValues(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_LEAD_TIME", "7days")
	t.Setenv("RECONCILE_WORKERS", "four")
	t.Setenv("KAFKA_SASL", "sure")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_LEAD_TIME")
	assert.Contains(t, err.Error(), "RECONCILE_WORKERS")
	assert.Contains(t, err.Error(), "KAFKA_SASL")
}

func TestLoad_ParsesTypedValues(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_LEAD_TIME", "72h")
	t.Setenv("RECONCILE_WORKERS", "8")
	t.Setenv("NOTIFY_RPS", "0.5")
	t.Setenv("KAFKA_SASL", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, cfg.PollLeadTime)
	assert.Equal(t, 8, cfg.ReconcileWorkers)
	assert.InDelta(t, 0.5, cfg.NotifyRPS, 1e-9)
	assert.True(t, cfg.KafkaSASL)
}
