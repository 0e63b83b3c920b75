package database

import (
	"testing"
	"time"

	"github.com/vetcore/platform/internal/shared/config"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "vetcore",
		Password: "secret",
		Database: "petclinic",
		SSLMode:  "disable",
	}
}

func TestPoolConfigAppliesSettings(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.MaxConns = 8
	cfg.MinConns = 2
	cfg.AppName = "vetcore-test"
	cfg.StatementTimeout = 1500 * time.Millisecond

	pc, err := PoolConfig(cfg)
	if err != nil {
		t.Fatalf("PoolConfig() error = %v", err)
	}
	if pc.MaxConns != 8 || pc.MinConns != 2 {
		t.Errorf("conns = %d/%d, want 2/8", pc.MinConns, pc.MaxConns)
	}
	if got := pc.ConnConfig.RuntimeParams["application_name"]; got != "vetcore-test" {
		t.Errorf("application_name = %q", got)
	}
	if got := pc.ConnConfig.RuntimeParams["statement_timeout"]; got != "1500" {
		t.Errorf("statement_timeout = %q", got)
	}
	if pc.ConnConfig.Database != "petclinic" || pc.ConnConfig.Port != 5432 {
		t.Errorf("unexpected connection target %s:%d", pc.ConnConfig.Database, pc.ConnConfig.Port)
	}
}

func TestPoolConfigKeepsDriverDefaults(t *testing.T) {
	pc, err := PoolConfig(testDatabaseConfig())
	if err != nil {
		t.Fatalf("PoolConfig() error = %v", err)
	}
	if pc.MaxConns < 1 {
		t.Errorf("expected a positive default max, got %d", pc.MaxConns)
	}
	if _, ok := pc.ConnConfig.RuntimeParams["statement_timeout"]; ok {
		t.Error("statement_timeout should not be set without a timeout")
	}
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.Port = -1

	if _, err := PoolConfig(cfg); err == nil {
		t.Error("expected a parse error")
	}
}
