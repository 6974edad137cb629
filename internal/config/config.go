// Package config assembles Config from an optional file overlay plus
// environment variables. Every section owns the defaults its package
// already exposes; this package only decides precedence (env overrides
// an optional file overlay) and wiring.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/notifier"
	"github.com/r3e-collective/ticketflow/internal/orchestrator"
	"github.com/r3e-collective/ticketflow/internal/platform/database"
	"github.com/r3e-collective/ticketflow/internal/ratelimit"
	"github.com/r3e-collective/ticketflow/internal/resilience"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" env:"SERVER_LISTEN_ADDR"`
}

// UpstreamConfig parameterizes the upstream support-ticket API client.
type UpstreamConfig struct {
	BaseURL string        `json:"base_url" env:"UPSTREAM_BASE_URL"`
	Timeout time.Duration `json:"timeout" env:"UPSTREAM_TIMEOUT"`
}

// NotifierConfig parameterizes the outbound notifier endpoint, layered on
// top of the notifier package's worker pool Config.
type NotifierConfig struct {
	Endpoint string          `json:"endpoint" env:"NOTIFIER_ENDPOINT"`
	Pool     notifier.Config `json:"pool"`
}

// SchedulerConfig controls the periodic auto-ingest sweep.
type SchedulerConfig struct {
	CronExpr string   `json:"cron_expr" env:"SCHEDULER_CRON_EXPR"`
	Enabled  bool     `json:"enabled" env:"SCHEDULER_ENABLED"`
	Tenants  []string `json:"tenants" env:"SCHEDULER_TENANTS"`
}

// RedisConfig parameterizes the dead-letter sink's backing Redis instance.
type RedisConfig struct {
	Addr          string `json:"addr" env:"REDIS_ADDR"`
	DeadLetterKey string `json:"dead_letter_key" env:"REDIS_DEAD_LETTER_KEY"`
}

// LockConfig parameterizes the distributed lock's lease length.
type LockConfig struct {
	TTL time.Duration `json:"ttl" env:"LOCK_TTL"`
}

// Config is the top-level, fully assembled configuration.
type Config struct {
	Server       ServerConfig
	Database     database.Config
	Logging      logger.Config
	RateLimiter  ratelimit.Config
	Breaker      resilience.Config
	Lock         LockConfig
	Upstream     UpstreamConfig
	Notifier     NotifierConfig
	Redis        RedisConfig
	Scheduler    SchedulerConfig
	Orchestrator orchestrator.Config
}

// Default returns the configuration every section's own package defaults
// to, before any file overlay or environment override is applied.
func Default() Config {
	return Config{
		Server:       ServerConfig{ListenAddr: ":8080"},
		Database:     database.Config{},
		Logging:      logger.Config{Level: "info", Format: "text"},
		RateLimiter:  ratelimit.DefaultConfig(),
		Breaker:      resilience.DefaultConfig(),
		Lock:         LockConfig{TTL: lock.DefaultTTL},
		Upstream:     UpstreamConfig{Timeout: 10 * time.Second},
		Notifier:     NotifierConfig{Pool: notifier.DefaultConfig()},
		Redis:        RedisConfig{Addr: "localhost:6379", DeadLetterKey: "ticketflow:notifications:dead"},
		Scheduler:    SchedulerConfig{CronExpr: "*/5 * * * *", Enabled: false},
		Orchestrator: orchestrator.DefaultConfig(),
	}
}

// Load builds a Config by starting from Default, overlaying an optional
// JSON file at filePath (skipped if filePath is empty or missing), then
// applying environment variable overrides, which always win.
func Load(filePath string) (Config, error) {
	cfg := Default()

	if filePath != "" {
		if err := overlayFile(&cfg, filePath); err != nil {
			return Config{}, err
		}
	}
	overlayEnv(&cfg)
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("SERVER_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := envInt("DATABASE_MAX_OPEN_CONNS"); v != nil {
		cfg.Database.MaxOpenConns = *v
	}
	if v := envInt("DATABASE_MAX_IDLE_CONNS"); v != nil {
		cfg.Database.MaxIdleConns = *v
	}
	if v := envDuration("DATABASE_CONN_MAX_LIFETIME"); v != nil {
		cfg.Database.ConnMaxLifetime = *v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := envInt("RATE_LIMIT_LIMIT"); v != nil {
		cfg.RateLimiter.Limit = *v
	}
	if v := envDuration("RATE_LIMIT_WINDOW"); v != nil {
		cfg.RateLimiter.Window = *v
	}
	if v := envDuration("LOCK_TTL"); v != nil {
		cfg.Lock.TTL = *v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := envDuration("UPSTREAM_TIMEOUT"); v != nil {
		cfg.Upstream.Timeout = *v
	}
	if v := os.Getenv("NOTIFIER_ENDPOINT"); v != "" {
		cfg.Notifier.Endpoint = v
	}
	if v := envInt("NOTIFIER_WORKERS"); v != nil {
		cfg.Notifier.Pool.Workers = *v
	}
	if v := os.Getenv("SCHEDULER_CRON_EXPR"); v != "" {
		cfg.Scheduler.CronExpr = v
	}
	if v := envBool("SCHEDULER_ENABLED"); v != nil {
		cfg.Scheduler.Enabled = *v
	}
	if v := os.Getenv("SCHEDULER_TENANTS"); v != "" {
		cfg.Scheduler.Tenants = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DEAD_LETTER_KEY"); v != "" {
		cfg.Redis.DeadLetterKey = v
	}
}

func envInt(key string) *int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envDuration(key string) *time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil
	}
	return &d
}

func envBool(key string) *bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
