package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overlays configuration from environment variables
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("TARGET_URL"); v != "" {
		cfg.Target.URL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Monitor.FrontendURL = v
	}
	if v := os.Getenv("CART_SERVICE_URL"); v != "" {
		cfg.Monitor.CartURL = v
	}
	if v := os.Getenv("TEST_INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("config: TEST_INTERVAL: %w", err)
		}
		cfg.Monitor.Interval = d
	}

	if v := os.Getenv("BOUTIQUELOAD_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Target.RateLimit = r
		}
	}
	if v := os.Getenv("BOUTIQUELOAD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BOUTIQUELOAD_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BOUTIQUELOAD_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	// Report upload
	cfg.Report.S3Region = GetEnvOrDefault("AWS_REGION", cfg.Report.S3Region)
	cfg.Report.S3Endpoint = GetEnvOrDefault("S3_ENDPOINT", cfg.Report.S3Endpoint)
	cfg.Report.S3AccessKey = GetEnvOrDefault("S3_ACCESS_KEY", cfg.Report.S3AccessKey)
	cfg.Report.S3SecretKey = GetEnvOrDefault("S3_SECRET_KEY", cfg.Report.S3SecretKey)

	return nil
}

// ParseInterval accepts whole seconds ("300") or a Go duration ("5m").
func ParseInterval(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval must be positive: %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", s)
	}
	return d, nil
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
