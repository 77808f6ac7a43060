package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/boutiqueload/internal/availability"
	"github.com/FairForge/boutiqueload/internal/scenario"
)

type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Run     RunConfig     `yaml:"run"`
	Monitor MonitorConfig `yaml:"monitor"`
	Store   StoreConfig   `yaml:"store"`
	Report  ReportConfig  `yaml:"report"`
	Log     LogConfig     `yaml:"log"`
}

// TargetConfig describes the frontend under load.
type TargetConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxConns  int           `yaml:"max_conns"`
	RateLimit float64       `yaml:"rate_limit"` // requests/s across all VUs, 0 = unlimited
	Burst     int           `yaml:"burst"`
	UserAgent string        `yaml:"user_agent"`
}

type RunConfig struct {
	Scenario     string   `yaml:"scenario"`
	ScenarioFile string   `yaml:"scenario_file"`
	Seed         int64    `yaml:"seed"`
	Outputs      []string `yaml:"outputs"`
	MetricsAddr  string   `yaml:"metrics_addr"`
	NoColor      bool     `yaml:"no_color"`
}

type MonitorConfig struct {
	FrontendURL string        `yaml:"frontend_url"`
	CartURL     string        `yaml:"cart_url"`
	Interval    time.Duration `yaml:"interval"`
	Listen      string        `yaml:"listen"`
	Services    bool          `yaml:"services"`
}

type StoreConfig struct {
	DSN      string `yaml:"dsn"` // empty keeps results in memory
	Capacity int    `yaml:"capacity"`
}

type ReportConfig struct {
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			URL:       scenario.DefaultTargetURL,
			Timeout:   60 * time.Second,
			MaxConns:  100,
			UserAgent: "boutiqueload/1.0",
		},
		Run: RunConfig{
			Scenario: scenario.Smoke,
			Outputs:  []string{"stdout"},
		},
		Monitor: MonitorConfig{
			FrontendURL: availability.DefaultFrontendURL,
			CartURL:     availability.DefaultCartURL,
			Interval:    availability.DefaultInterval,
			Listen:      ":5000",
		},
		Store: StoreConfig{Capacity: 1000},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"target.url":           c.Target.URL,
		"monitor.frontend_url": c.Monitor.FrontendURL,
		"monitor.cart_url":     c.Monitor.CartURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: %s: invalid URL %q", name, raw))
		}
	}
	if c.Target.Timeout <= 0 {
		errs = append(errs, errors.New("config: target.timeout must be positive"))
	}
	if c.Target.RateLimit < 0 {
		errs = append(errs, errors.New("config: target.rate_limit cannot be negative"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("config: monitor.interval must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}
