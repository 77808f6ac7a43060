package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var envKeys = []string{
	"TARGET_URL", "FRONTEND_URL", "CART_SERVICE_URL", "TEST_INTERVAL",
	"BOUTIQUELOAD_RATE_LIMIT", "BOUTIQUELOAD_LOG_LEVEL", "BOUTIQUELOAD_LOG_FORMAT",
	"BOUTIQUELOAD_DB_DSN", "AWS_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boutiqueload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://frontend.online-boutique.svc.cluster.local", cfg.Target.URL)
	assert.Equal(t, "http://frontend:8080", cfg.Monitor.FrontendURL)
	assert.Equal(t, "http://cartservice:7070", cfg.Monitor.CartURL)
	assert.Equal(t, 300*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, []string{"stdout"}, cfg.Run.Outputs)
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, `
target:
  url: http://localhost:8080
  rate_limit: 50
run:
  scenario: load
  outputs: [stdout, "file:summary.json.gz"]
monitor:
  interval: 1m
log:
  level: debug
  format: console
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", cfg.Target.URL)
		assert.Equal(t, 50.0, cfg.Target.RateLimit)
		assert.Equal(t, 60*time.Second, cfg.Target.Timeout, "unset fields keep defaults")
		assert.Equal(t, "load", cfg.Run.Scenario)
		assert.Equal(t, []string{"stdout", "file:summary.json.gz"}, cfg.Run.Outputs)
		assert.Equal(t, time.Minute, cfg.Monitor.Interval)
		assert.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		path := writeFile(t, "target:\n  url: http://localhost:8080\n")
		t.Setenv("TARGET_URL", "http://staging:80")
		t.Setenv("TEST_INTERVAL", "30")
		t.Setenv("BOUTIQUELOAD_DB_DSN", "postgres://localhost/boutique")
		t.Setenv("S3_ACCESS_KEY", "key")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://staging:80", cfg.Target.URL)
		assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
		assert.Equal(t, "postgres://localhost/boutique", cfg.Store.DSN)
		assert.Equal(t, "key", cfg.Report.S3AccessKey)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		_, err := Load(writeFile(t, "target:\n  adress: http://x\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "adress")
	})

	t.Run("empty file is fine", func(t *testing.T) {
		_, err := Load(writeFile(t, ""))
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad interval in environment", func(t *testing.T) {
		t.Setenv("TEST_INTERVAL", "soon")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TEST_INTERVAL")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative target", func(c *Config) { c.Target.URL = "/just/a/path" }, "target.url"},
		{"no cart scheme", func(c *Config) { c.Monitor.CartURL = "cartservice:7070" }, "monitor.cart_url"},
		{"zero timeout", func(c *Config) { c.Target.Timeout = 0 }, "target.timeout"},
		{"negative rate", func(c *Config) { c.Target.RateLimit = -1 }, "rate_limit"},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }, "monitor.interval"},
		{"log format", func(c *Config) { c.Log.Format = "logfmt" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "300", want: 5 * time.Minute},
		{in: "1", want: time.Second},
		{in: "90s", want: 90 * time.Second},
		{in: "2m30s", want: 150 * time.Second},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "-1m", wantErr: true},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("BOUTIQUELOAD_TEST_VALUE", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("BOUTIQUELOAD_TEST_VALUE", "fallback"))
	t.Setenv("BOUTIQUELOAD_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("BOUTIQUELOAD_TEST_VALUE", "fallback"))
}

func TestWatch(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "monitor:\n  interval: 1m\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zap.NewNop(), func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	t.Run("invalid content is skipped", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("monitor:\n  interval: -1s\n"), 0600))
		select {
		case c := <-changes:
			t.Fatalf("unexpected reload: %+v", c.Monitor)
		case <-time.After(400 * time.Millisecond):
		}
	})

	t.Run("valid change is delivered", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("monitor:\n  interval: 10s\n"), 0600))
		select {
		case c := <-changes:
			assert.Equal(t, 10*time.Second, c.Monitor.Interval)
		case <-time.After(3 * time.Second):
			t.Fatal("no reload observed")
		}
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
