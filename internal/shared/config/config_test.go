package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "")
	t.Setenv("ALERTS_REFRESH_INTERVAL", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Events.Driver != "none" {
		t.Errorf("expected default events driver none, got %q", cfg.Events.Driver)
	}
	if cfg.Alerts.RefreshInterval != 15*time.Minute {
		t.Errorf("expected default refresh interval 15m, got %s", cfg.Alerts.RefreshInterval)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected default origins %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "nats")
	t.Setenv("ALERTS_REFRESH_INTERVAL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Events.Driver != "nats" {
		t.Errorf("expected nats driver, got %q", cfg.Events.Driver)
	}
	if cfg.Alerts.RefreshInterval != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.Alerts.RefreshInterval)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("expected db port 6543, got %d", cfg.Database.Port)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "kafka")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadRejectsNonPositiveRefreshInterval(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "")

	for _, interval := range []string{"0s", "-5m"} {
		t.Setenv("ALERTS_REFRESH_INTERVAL", interval)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for refresh interval %s", interval)
		}
	}
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for default secret in production")
	}
}

func TestLoadWatcherFromFile(t *testing.T) {
	t.Setenv("VETCORE_API_URL", "")
	t.Setenv("VETCORE_TOKEN_FILE", "")

	path := filepath.Join(t.TempDir(), "watch.yaml")
	content := []byte(`
api_url: https://clinic.example/api/v1
refresh_interval: 2m
events_driver: nats
nats_url: nats://bus:4222
retry:
  max_attempts: 4
  max_backoff: 10s
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWatcher(path)
	if err != nil {
		t.Fatalf("LoadWatcher() error = %v", err)
	}
	if cfg.APIURL != "https://clinic.example/api/v1" {
		t.Errorf("unexpected api url %q", cfg.APIURL)
	}
	if cfg.RefreshInterval != 2*time.Minute {
		t.Errorf("expected 2m, got %s", cfg.RefreshInterval)
	}
	if cfg.Events.Driver != "nats" || cfg.Events.NATSURL != "nats://bus:4222" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if cfg.TokenFile != ".vetcore-token" {
		t.Errorf("expected default token file, got %q", cfg.TokenFile)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("unexpected retry block %+v", cfg.Retry)
	}
	if !cfg.Retry.BreakerEnabled || cfg.Retry.OpenTimeout != time.Minute {
		t.Errorf("expected unset retry fields to keep defaults, got %+v", cfg.Retry)
	}
}

func TestLoadWatcherEnvOverride(t *testing.T) {
	t.Setenv("VETCORE_API_URL", "http://override/api/v1")

	cfg, err := LoadWatcher("")
	if err != nil {
		t.Fatalf("LoadWatcher() error = %v", err)
	}
	if cfg.APIURL != "http://override/api/v1" {
		t.Errorf("expected env override, got %q", cfg.APIURL)
	}
}

func TestLoadPoolAndRetrySettings(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "")
	t.Setenv("DB_MAX_CONNS", "10")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("DB_APP_NAME", "alert-worker")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("BREAKER_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.MaxConns != 10 || cfg.Database.MinConns != 2 || cfg.Database.AppName != "alert-worker" {
		t.Errorf("unexpected pool settings %+v", cfg.Database)
	}
	if cfg.Resilience.MaxAttempts != 5 || cfg.Resilience.FailureRatio != 0.25 || cfg.Resilience.BreakerEnabled {
		t.Errorf("unexpected resilience settings %+v", cfg.Resilience)
	}
}

func TestLoadRejectsInvalidPoolBounds(t *testing.T) {
	t.Setenv("EVENTS_DRIVER", "")

	for _, tc := range []struct{ min, max string }{
		{"6", "5"},
		{"0", "0"},
		{"-1", "5"},
	} {
		t.Setenv("DB_MIN_CONNS", tc.min)
		t.Setenv("DB_MAX_CONNS", tc.max)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for min=%s max=%s", tc.min, tc.max)
		}
	}
}
