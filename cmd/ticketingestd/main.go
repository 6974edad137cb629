package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/r3e-collective/ticketflow/internal/analytics"
	"github.com/r3e-collective/ticketflow/internal/config"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/httpapi"
	"github.com/r3e-collective/ticketflow/internal/job"
	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/metrics"
	"github.com/r3e-collective/ticketflow/internal/notifier"
	"github.com/r3e-collective/ticketflow/internal/orchestrator"
	"github.com/r3e-collective/ticketflow/internal/platform/database"
	"github.com/r3e-collective/ticketflow/internal/platform/migrations"
	"github.com/r3e-collective/ticketflow/internal/ratelimit"
	"github.com/r3e-collective/ticketflow/internal/resilience"
	"github.com/r3e-collective/ticketflow/internal/scheduler"
	"github.com/r3e-collective/ticketflow/internal/store"
	"github.com/r3e-collective/ticketflow/internal/sync"
	"github.com/r3e-collective/ticketflow/internal/upstream"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

const notifierBreakerName = "notifier"

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config/env)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	appLog := logger.New(cfg.Logging)
	rootCtx := context.Background()

	var (
		db          *sql.DB
		ticketStore store.TicketStore
		historyLog  history.Log
		lockService lock.Service
		jobStore    job.Store
	)

	if strings.TrimSpace(cfg.Database.DSN) != "" {
		db, err = database.Open(rootCtx, cfg.Database)
		if err != nil {
			appLog.Component("main").WithField("error", err.Error()).Fatal("connect to postgres")
		}
		defer db.Close()

		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				appLog.Component("main").WithField("error", err.Error()).Fatal("apply migrations")
			}
		}

		ticketStore = store.NewPostgresStore(db)
		historyLog = history.NewPostgresLog(db)
		lockService = lock.NewPostgresService(db)
		jobStore = job.NewPostgresStore(db)
	} else {
		appLog.Component("main").Warn("no DATABASE_DSN configured; running with in-memory storage")
		ticketStore = store.NewMemoryStore()
		historyLog = history.NewMemoryLog()
		lockService = lock.NewMemoryService()
		jobStore = job.NewMemoryStore()
	}

	breakers := resilience.NewRegistry()
	notifierBreaker := breakers.RegisterOnce(notifierBreakerName, cfg.Breaker)

	var deadLetter notifier.DeadLetterSink
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		deadLetter = notifier.NewRedisDeadLetterSink(redisClient, cfg.Redis.DeadLetterKey)
	}

	dispatcher := notifier.New(cfg.Notifier.Endpoint, notifierBreaker, deadLetter, appLog, cfg.Notifier.Pool)
	dispatcher.Start(rootCtx)
	defer dispatcher.Stop()

	limiter := ratelimit.New(cfg.RateLimiter)
	upstreamClient := upstream.New(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.Timeout})
	syncEngine := sync.New(ticketStore, historyLog)
	planner := analytics.New(ticketStore)

	orchCfg := cfg.Orchestrator
	orchCfg.LockTTL = cfg.Lock.TTL
	orch := orchestrator.New(limiter, lockService, upstreamClient, syncEngine, jobStore, dispatcher, appLog, orchCfg)

	reg := metrics.New()
	orch.SetMetrics(reg)

	var sweep *scheduler.Sweep
	if cfg.Scheduler.Enabled && len(cfg.Scheduler.Tenants) > 0 {
		sweep, err = scheduler.New(cfg.Scheduler.CronExpr, cfg.Scheduler.Tenants, func(ctx context.Context, tenantID string) error {
			_, runErr := orch.Run(ctx, tenantID)
			return runErr
		}, appLog)
		if err != nil {
			appLog.Component("main").WithField("error", err.Error()).Fatal("configure scheduler")
		}
		sweep.Start()
		defer sweep.Stop()
	}

	server := &httpapi.Server{
		Store:        ticketStore,
		History:      historyLog,
		Jobs:         jobStore,
		Locks:        lockService,
		Breakers:     breakers,
		Planner:      planner,
		Orchestrator: orch,
		DB:           db,
		Log:          appLog,
	}

	mux := http.NewServeMux()
	mux.Handle("/", server.Routes())
	mux.Handle("/metrics", reg.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		appLog.Component("main").WithField("addr", cfg.Server.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Component("main").WithField("error", err.Error()).Fatal("http server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Component("main").WithField("error", err.Error()).Error("graceful shutdown failed")
	}
}
