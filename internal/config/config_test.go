package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "poster.db", cfg.Store.Path)
	assert.Equal(t, "https://api.dmm.com/affiliate/v3", cfg.Catalog.BaseURL)
	assert.Equal(t, "digital", cfg.Catalog.Service)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "https://api.x.ai/v1", cfg.Grok.BaseURL)
	assert.Equal(t, 80, cfg.Enrich.ThresholdHigh)
	assert.Equal(t, 50, cfg.Enrich.ThresholdPublish)
	assert.Equal(t, 30, cfg.Enrich.ThresholdName)
	assert.Equal(t, 10, cfg.Enrich.AgreementBonus)
	assert.Equal(t, "Asia/Tokyo", cfg.Schedule.Timezone)
	assert.Equal(t, 48, cfg.Schedule.SlotsPerDay)
	assert.Equal(t, 30, cfg.Schedule.CadenceMins)
	assert.Equal(t, 30, cfg.Schedule.FirstSlotMins)
	assert.Equal(t, 2, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 10, cfg.Orchestrator.BatchSize)
	assert.InDelta(t, 1.0, cfg.RateLimits.Catalog.PerSecond, 0.001)
	assert.Equal(t, 1500, cfg.RateLimits.Gemini.PerDay)
	assert.InDelta(t, 2.0, cfg.RateLimits.WordPress.PerSecond, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/poster
enrich:
  threshold_high: 90
  threshold_publish: 60
schedule:
  timezone: UTC
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/poster", cfg.Store.DatabaseURL)
	assert.Equal(t, 90, cfg.Enrich.ThresholdHigh)
	assert.Equal(t, 60, cfg.Enrich.ThresholdPublish)
	assert.Equal(t, "UTC", cfg.Schedule.Timezone)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched defaults survive
	assert.Equal(t, 48, cfg.Schedule.SlotsPerDay)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:        StoreConfig{Driver: "sqlite"},
			Enrich:       EnrichConfig{ThresholdHigh: 80, ThresholdPublish: 50},
			Schedule:     ScheduleConfig{Timezone: "UTC", SlotsPerDay: 48, CadenceMins: 30},
			Orchestrator: OrchestratorConfig{Concurrency: 2},
		}
	}

	require.NoError(t, base().Validate())

	bad := base()
	bad.Store.Driver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base()
	bad.Enrich.ThresholdPublish = 95 // above threshold_high
	assert.Error(t, bad.Validate())

	bad = base()
	bad.Schedule.Timezone = "Mars/Olympus"
	assert.Error(t, bad.Validate())

	bad = base()
	bad.Schedule.SlotsPerDay = 0
	assert.Error(t, bad.Validate())

	bad = base()
	bad.Orchestrator.Concurrency = 0
	assert.Error(t, bad.Validate())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
