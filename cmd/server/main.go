package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/switchboard-labs/switchboard/internal/api"
	"github.com/switchboard-labs/switchboard/internal/buildconfig"
	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/events"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/provider"
	"github.com/switchboard-labs/switchboard/internal/service"
	"github.com/switchboard-labs/switchboard/internal/store"
	"github.com/switchboard-labs/switchboard/internal/store/memstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// demoSenders seeds the in-memory WhatsApp pool so demo provisioning can
// exercise the sender path.
var demoSenders = []struct{ id, number string }{
	{"sandbox-wa-1", "+15550100001"},
	{"sandbox-wa-2", "+15550100002"},
	{"sandbox-wa-3", "+15550100003"},
}

func main() {
	var (
		envFile    string
		addr       string
		policyFile string
		migrate    bool
	)
	flags := pflag.NewFlagSet("switchboard", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env", "", "env file to load (default: $SWITCHBOARD_ENV or .env)")
	flags.StringVar(&addr, "addr", "", "listen address (default: :$SERVER_PORT)")
	flags.StringVar(&policyFile, "policy", "", "compliance and tier policy YAML (default: $POLICY_FILE)")
	flags.BoolVar(&migrate, "migrate", true, "apply pending SQL migrations at startup")
	version := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *version {
		fmt.Println(buildconfig.String())
		return
	}

	config.LoadEnv(envFile)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if addr == "" {
		addr = cfg.ServerAddr()
	}
	if policyFile == "" {
		policyFile = cfg.PolicyFile
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, addr, policyFile, migrate, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func run(cfg *config.Config, addr, policyFile string, migrate bool, logger *zap.Logger) error {
	ctx := context.Background()

	policy := config.DefaultPolicy()
	if policyFile != "" {
		p, err := config.LoadPolicy(policyFile)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		policy = p
		logger.Info("loaded policy", zap.String("file", policyFile))
	}

	providers, err := provider.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	deps := api.Deps{
		Config:    cfg,
		Policy:    policy,
		Providers: providers,
		Metrics:   m,
		Gatherer:  registry,
		Logger:    logger,
	}

	if cfg.InMemory() {
		db := memstore.New(domain.DefaultMaxAgents)
		for _, s := range demoSenders {
			_ = db.Pool.AddSender(ctx, s.id, s.number)
		}
		deps.Stores = api.MemoryStores(db)
		logger.Warn("no DATABASE_URL set; running on the in-memory store, state is lost on restart")
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database")

		if migrate {
			n, err := store.Migrate(ctx, pool, cfg.MigrationsPath, logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations up to date", zap.Int("applied", n))
		}
		deps.Stores = api.PostgresStores(pool)
		deps.DB = pool
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		deps.Locker = service.NewRedisLocker(rdb, logger)
		logger.Info("using redis for per-agent admission locks")
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return fmt.Errorf("connect to amqp: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
		logger.Info("publishing audit events", zap.String("exchange", cfg.AMQPExchange))
	}

	app := api.NewApp(deps)
	app.Start()

	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.Bool("demo", cfg.DemoMode),
			zap.String("provider", cfg.Provider),
			zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		app.Stop()
		return err
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	app.Stop()

	logger.Info("server stopped")
	return nil
}
