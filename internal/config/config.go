package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner service.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Timezone    string `mapstructure:"TIMEZONE"`

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	WebhookURL    string `mapstructure:"WEBHOOK_URL"`

	GeminiAPIKey   string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel    string        `mapstructure:"GEMINI_MODEL"`
	EmbeddingModel string        `mapstructure:"EMBEDDING_MODEL"`
	OpenAIAPIKey   string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel    string        `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL  string        `mapstructure:"OPENAI_BASE_URL"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`

	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisPassword     string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int           `mapstructure:"REDIS_DB"`
	EmbeddingCacheTTL time.Duration `mapstructure:"EMBEDDING_CACHE_TTL"`

	DailyPlanTime       string        `mapstructure:"DAILY_PLAN_TIME"`
	ReminderInterval    time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ContextSyncInterval time.Duration `mapstructure:"CONTEXT_SYNC_INTERVAL"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"ENVIRONMENT":           "development",
	"HTTP_ADDR":             ":8080",
	"DATABASE_URL":          "study_planner.db",
	"TIMEZONE":              "Local",
	"GEMINI_MODEL":          "gemini-2.0-flash",
	"EMBEDDING_MODEL":       "gemini-embedding-001",
	"OPENAI_MODEL":          "gpt-4o-mini",
	"LLM_TIMEOUT":           "30s",
	"EMBEDDING_CACHE_TTL":   "168h",
	"DAILY_PLAN_TIME":       "06:00",
	"REMINDER_INTERVAL":     "3h",
	"CONTEXT_SYNC_INTERVAL": "30m",
	"LOG_LEVEL":             "info",
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit directory to look for .env in.
func LoadFrom(dir string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// Unmarshal only sees keys viper knows about; register every field.
	for _, key := range []string{
		"TELEGRAM_TOKEN", "WEBHOOK_URL", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "LOG_FILE",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// Hour counts are accepted for compatibility with REMINDER_INTERVAL_HOURS.
	if hours := parseInterval(strings.TrimSpace(v.GetString("REMINDER_INTERVAL_HOURS"))); hours > 0 {
		cfg.ReminderInterval = hours
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if _, err := time.Parse("15:04", c.DailyPlanTime); err != nil {
		return fmt.Errorf("DAILY_PLAN_TIME %q: expected HH:MM", c.DailyPlanTime)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE; "Local" and empty mean the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
