package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := RuntimeSettings{
		ServiceURL:      "http://whisper.local:8000",
		DefaultLanguage: "en",
		PollIntervalMS:  500,
		HealthCronExpr:  "*/5 * * * *",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.HealthCronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	invalidURL := valid
	invalidURL.ServiceURL = "ftp://whisper.local"
	require.Error(t, invalidURL.Validate())

	invalidInterval := valid
	invalidInterval.PollIntervalMS = 0
	require.Error(t, invalidInterval.Validate())

	noLanguage := valid
	noLanguage.DefaultLanguage = ""
	require.NoError(t, noLanguage.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := RuntimeSettings{
		ServiceURL:      "http://whisper.local:8000",
		DefaultLanguage: "de",
		PollIntervalMS:  250,
		HealthCronExpr:  "@every 1m",
	}

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRANSCRIBE_SERVICE_URL", "http://env.example:8000")
	t.Setenv("TRANSCRIBE_POLL_INTERVAL_MS", "2000")
	t.Setenv("HEALTH_CRON_EXPR", "@every 1h")

	override := RuntimeSettings{
		ServiceURL:      "http://file.example:9000",
		DefaultLanguage: "ja",
		PollIntervalMS:  300,
		HealthCronExpr:  "*/30 * * * *",
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.ServiceURL, cfg.Service.URL)
	assert.Equal(t, 300*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, override.HealthCronExpr, cfg.Health.CronExpr)
	assert.Equal(t, "ja", cfg.Transcribe.DefaultLanguage)
	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")
	initial := RuntimeSettings{
		ServiceURL:     "http://old.example:8000",
		PollIntervalMS: 1000,
		HealthCronExpr: "@every 30s",
	}

	store, err := NewRuntimeSettingsStore(filePath, initial)
	require.NoError(t, err)

	next := RuntimeSettings{
		ServiceURL:      "http://new.example:8000",
		DefaultLanguage: "en",
		PollIntervalMS:  750,
		HealthCronExpr:  "*/10 * * * *",
	}
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)

	bad := next
	bad.PollIntervalMS = -1
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)
	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)
}
