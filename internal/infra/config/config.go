package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken    string
	DatabaseURL      string
	APIBaseURL       string
	APITimeout       time.Duration
	LogLevel         string
	Environment      string
	MetricsAddr      string // Empty disables the metrics endpoint
	AskRatePerMinute int

	CronSpecSessionRefresh string // Proactive refresh of sessions about to expire
	CronSpecSessionPurge   string // Removal of abandoned sessions
	SessionRefreshWindow   time.Duration
	SessionRetention       time.Duration
	StreamEditInterval     time.Duration // Minimum delay between edits of a streamed reply
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:3000/api/v1"
	}

	if cfg.APITimeout, err = durationEnv("API_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.MetricsAddr = ":9090"
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}

	cfg.AskRatePerMinute = 6
	if v := os.Getenv("ASK_RATE_PER_MINUTE"); v != "" {
		cfg.AskRatePerMinute, err = strconv.Atoi(v)
		if err != nil || cfg.AskRatePerMinute < 0 {
			return nil, fmt.Errorf("invalid ASK_RATE_PER_MINUTE: %q", v)
		}
	}

	cfg.CronSpecSessionRefresh = os.Getenv("CRON_SPEC_SESSION_REFRESH")
	if cfg.CronSpecSessionRefresh == "" {
		cfg.CronSpecSessionRefresh = "*/5 * * * *" // Default: every 5 minutes
	}

	cfg.CronSpecSessionPurge = os.Getenv("CRON_SPEC_SESSION_PURGE")
	if cfg.CronSpecSessionPurge == "" {
		cfg.CronSpecSessionPurge = "0 3 * * *" // Default: 3 AM daily
	}

	if cfg.SessionRefreshWindow, err = durationEnv("SESSION_REFRESH_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionRetention, err = durationEnv("SESSION_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StreamEditInterval, err = durationEnv("STREAM_EDIT_INTERVAL", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationEnv parses a Go duration such as "90s" or "10m".
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
