package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WatcherConfig configures the alertwatch operator tool.
type WatcherConfig struct {
	APIURL          string        `yaml:"api_url"`
	TokenFile       string        `yaml:"token_file"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	LogLevel        string        `yaml:"log_level"`

	Retry ResilienceConfig `yaml:"retry"`

	Events EventsConfig `yaml:"-"`

	EventsDriver  string `yaml:"events_driver"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`

	KurrentDB struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Insecure bool   `yaml:"insecure"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"kurrentdb"`
}

// DefaultWatcherConfig returns the settings used when no file is given.
func DefaultWatcherConfig() WatcherConfig {
	cfg := WatcherConfig{
		APIURL:          "http://localhost:8080/api/v1",
		TokenFile:       ".vetcore-token",
		RefreshInterval: 5 * time.Minute,
		RequestTimeout:  10 * time.Second,
		LogLevel:        "info",
		EventsDriver:    "none",
		NATSURL:         "nats://localhost:4222",
		SubjectPrefix:   "vetcore",
		Retry: ResilienceConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BreakerEnabled: true,
			FailureRatio:   0.6,
			OpenTimeout:    time.Minute,
		},
	}
	cfg.KurrentDB.Host = "localhost"
	cfg.KurrentDB.Port = 2113
	cfg.KurrentDB.Insecure = true
	return cfg
}

// LoadWatcher reads a YAML file over the defaults. An empty path returns the
// defaults. VETCORE_API_URL and VETCORE_TOKEN_FILE override the file.
func LoadWatcher(path string) (WatcherConfig, error) {
	cfg := DefaultWatcherConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return WatcherConfig{}, fmt.Errorf("read watcher config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return WatcherConfig{}, fmt.Errorf("parse watcher config: %w", err)
		}
	}

	cfg.APIURL = getEnv("VETCORE_API_URL", cfg.APIURL)
	cfg.TokenFile = getEnv("VETCORE_TOKEN_FILE", cfg.TokenFile)

	switch cfg.EventsDriver {
	case "kurrentdb", "nats", "none":
	default:
		return WatcherConfig{}, fmt.Errorf("unknown events_driver %q", cfg.EventsDriver)
	}
	if cfg.RefreshInterval <= 0 {
		return WatcherConfig{}, fmt.Errorf("refresh_interval must be positive")
	}

	cfg.Events = EventsConfig{
		Driver:        cfg.EventsDriver,
		NATSURL:       cfg.NATSURL,
		SubjectPrefix: cfg.SubjectPrefix,
	}
	return cfg, nil
}

// KurrentDBSettings converts the YAML block into the shared connection config.
func (c WatcherConfig) KurrentDBSettings() KurrentDBConfig {
	return KurrentDBConfig{
		Host:     c.KurrentDB.Host,
		Port:     c.KurrentDB.Port,
		Insecure: c.KurrentDB.Insecure,
		Username: c.KurrentDB.Username,
		Password: c.KurrentDB.Password,
	}
}
