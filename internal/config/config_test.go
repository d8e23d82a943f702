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
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "study_planner.db", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 3*time.Hour, cfg.ReminderInterval)
	assert.Equal(t, 30*time.Minute, cfg.ContextSyncInterval)
	assert.Equal(t, "06:00", cfg.DailyPlanTime)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("DATABASE_URL=file.db\nOPENAI_MODEL=from-file\nREDIS_DB=2\n"), 0o600))
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("LLM_TIMEOUT", "12s")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "file.db", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.OpenAIModel)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 12*time.Second, cfg.LLMTimeout)
}

func TestReminderIntervalHours(t *testing.T) {
	t.Setenv("REMINDER_INTERVAL_HOURS", "4")
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, cfg.ReminderInterval)
}

func TestValidateRejectsBadPlanTime(t *testing.T) {
	t.Setenv("DAILY_PLAN_TIME", "6am")
	_, err := LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "DAILY_PLAN_TIME")
}

func TestLocation(t *testing.T) {
	loc, err := Config{Timezone: "Africa/Nairobi"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Nairobi", loc.String())

	loc, err = Config{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = Config{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
