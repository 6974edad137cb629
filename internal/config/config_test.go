package config

import (
	"os"
	"testing"
)

func TestDefaultPopulatesEverySectionsDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.ListenAddr == "" {
		t.Fatal("expected default listen addr")
	}
	if cfg.RateLimiter.Limit == 0 {
		t.Fatal("expected default rate limiter")
	}
	if cfg.Lock.TTL == 0 {
		t.Fatal("expected default lock ttl")
	}
	if cfg.Redis.Addr == "" {
		t.Fatal("expected default redis addr")
	}
}

func TestLoadAppliesSchedulerTenantsOverride(t *testing.T) {
	os.Setenv("SCHEDULER_TENANTS", "tenant-a,tenant-b")
	defer os.Unsetenv("SCHEDULER_TENANTS")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Scheduler.Tenants) != 2 || cfg.Scheduler.Tenants[0] != "tenant-a" {
		t.Fatalf("expected parsed tenant list, got %+v", cfg.Scheduler.Tenants)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	os.Setenv("SERVER_LISTEN_ADDR", ":9999")
	os.Setenv("RATE_LIMIT_LIMIT", "120")
	defer os.Unsetenv("SERVER_LISTEN_ADDR")
	defer os.Unsetenv("RATE_LIMIT_LIMIT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Fatalf("expected env override, got %s", cfg.Server.ListenAddr)
	}
	if cfg.RateLimiter.Limit != 120 {
		t.Fatalf("expected env override, got %d", cfg.RateLimiter.Limit)
	}
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if cfg.Server.ListenAddr != Default().Server.ListenAddr {
		t.Fatalf("expected defaults to survive a missing file overlay")
	}
}
