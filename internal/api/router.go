package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/switchboard-labs/switchboard/internal/api/handlers"
	mw "github.com/switchboard-labs/switchboard/internal/api/middleware"
	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/events"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/service"
	"github.com/switchboard-labs/switchboard/internal/store"
	"github.com/switchboard-labs/switchboard/internal/store/memstore"
	"go.uber.org/zap"
)

// Stores is one implementation per table, Postgres or in-memory.
type Stores struct {
	Orgs        domain.OrganizationStore
	Agents      domain.AgentStore
	Tokens      domain.TokenStore
	Limits      domain.LimitsStore
	Usage       domain.UsageStore
	DeadLetters domain.DeadLetterStore
	Calls       domain.CallLogStore
	Pool        domain.PoolStore
	DNC         domain.DNCStore
	Audit       domain.AuditStore
}

func PostgresStores(db *pgxpool.Pool) Stores {
	return Stores{
		Orgs:        store.NewOrganizationStore(db),
		Agents:      store.NewAgentStore(db),
		Tokens:      store.NewTokenStore(db),
		Limits:      store.NewLimitsStore(db),
		Usage:       store.NewUsageStore(db),
		DeadLetters: store.NewDeadLetterStore(db),
		Calls:       store.NewCallLogStore(db),
		Pool:        store.NewPoolStore(db),
		DNC:         store.NewDNCStore(db),
		Audit:       store.NewAuditStore(db),
	}
}

func MemoryStores(db *memstore.DB) Stores {
	return Stores{
		Orgs:        db.Orgs,
		Agents:      db.Agents,
		Tokens:      db.Tokens,
		Limits:      db.Limits,
		Usage:       db.Usage,
		DeadLetters: db.DeadLetters,
		Calls:       db.Calls,
		Pool:        db.Pool,
		DNC:         db.DNC,
		Audit:       db.Audit,
	}
}

// Deps is everything NewApp needs from main. Nil Locker, Publisher, Metrics
// and Gatherer fall back to in-process defaults.
type Deps struct {
	Config    *config.Config
	Policy    *config.Policy
	Stores    Stores
	Providers domain.Providers
	Locker    service.AgentLocker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	// DB is pinged by /health; nil on the in-memory store.
	DB     handlers.Pinger
	Logger *zap.Logger
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Janitor *service.Janitor

	limiter      *mw.RateLimiter
	stopLimiter  context.CancelFunc
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(d Deps) *App {
	cfg, logger := d.Config, d.Logger
	if d.Policy == nil {
		d.Policy = config.DefaultPolicy()
	}
	if d.Locker == nil {
		d.Locker = service.NewLocalLocker()
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	s, m := d.Stores, d.Metrics

	// Services
	tokens := service.NewTokenManager(s.Tokens, logger)
	auth := service.NewAuthResolver(cfg.OrchestratorToken, cfg.DemoMode, s.Orgs, s.Agents, tokens, logger)
	audit := service.NewAuditLogger(s.Audit, d.Publisher, auth, logger)
	limiter := service.NewLimiter(s.Usage, s.Limits, d.Locker, d.Policy, m, logger)
	tz := service.NewTimezoneResolver(cfg.DefaultTimezone, logger)
	compliance := service.NewComplianceGate(s.DNC, s.Orgs, auth, audit, d.Policy, tz, cfg.DemoMode, m, logger)
	pool := service.NewPoolManager(s.Pool, d.Providers.Telephony, cfg.WebhookBaseURL, cfg.ProviderTimeout, m, logger)
	billing := service.NewBillingService(s.Agents, s.Usage, limiter, auth, audit, cfg.DefaultMarkupPercent, m, logger)
	provisioning := service.NewProvisioningService(s.Agents, s.Orgs, auth, tokens, pool, limiter, audit, cfg.EmailDomain, m, logger)
	comms := service.NewCommsService(s.Agents, s.DeadLetters, s.Calls, auth, limiter, compliance, billing, audit, d.Providers,
		service.CommsOptions{
			ProviderTimeout: cfg.ProviderTimeout,
			WebhookBaseURL:  cfg.WebhookBaseURL,
			Demo:            cfg.DemoMode,
		}, m, logger)
	orgs := service.NewOrganizationService(s.Orgs, auth, audit, logger)
	creds := service.NewCredentialService(auth, tokens, audit, logger)

	// Handlers
	storeKind := "postgres"
	if d.DB == nil {
		storeKind = "memory"
	}
	metaHandler := handlers.NewMetaHandler(d.DB, cfg.DemoMode, cfg.Provider, storeKind)
	commsHandler := handlers.NewCommsHandler(comms, logger)
	webhookHandler := handlers.NewWebhookHandler(comms, logger)
	provisioningHandler := handlers.NewProvisioningHandler(provisioning, logger)
	billingHandler := handlers.NewBillingHandler(billing, logger)
	complianceHandler := handlers.NewComplianceHandler(compliance, logger)
	adminHandler := handlers.NewAdminHandler(auth, orgs, creds, audit, pool, logger)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Janitor:   service.NewJanitor(s.DeadLetters, logger),
		limiter:   mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		startTime: time.Now(),
	}
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, m)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.limiter.Middleware)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/debug/stats", app.statsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", metaHandler.Health)
		r.Get("/openapi.json", metaHandler.OpenAPI)
		r.Get("/integration-guide", metaHandler.IntegrationGuide)

		// Telephony provider callbacks
		r.Route("/webhooks/{agentID}", func(r chi.Router) {
			r.Use(mw.WebhookSecret(cfg.WebhookSecret))
			r.Post("/sms", webhookHandler.SMS)
			r.Post("/voice", webhookHandler.Voice)
			r.Post("/voice/status", webhookHandler.VoiceStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(auth))

			// Communication
			r.Post("/send-message", commsHandler.SendMessage)
			r.Post("/make-call", commsHandler.MakeCall)
			r.Post("/call-on-behalf", commsHandler.CallOnBehalf)
			r.Post("/send-voice-message", commsHandler.SendVoiceMessage)
			r.Post("/transfer-call", commsHandler.TransferCall)
			r.Get("/waiting-messages", commsHandler.WaitingMessages)
			r.Get("/channel-status", commsHandler.ChannelStatus)
			r.Post("/agent-settings", commsHandler.AgentSettings)

			// Usage and billing
			r.Get("/usage", billingHandler.Usage)
			r.Get("/billing", billingHandler.Billing)
			r.Post("/agent-limits", billingHandler.AgentLimits)
			r.Post("/billing/config", billingHandler.BillingConfig)

			// Agent lifecycle
			r.Post("/provision", provisioningHandler.Provision)
			r.Post("/deprovision", provisioningHandler.Deprovision)
			r.Post("/onboard", provisioningHandler.Onboard)
			r.Route("/agents/{id}", func(r chi.Router) {
				r.Get("/tokens", adminHandler.ListTokens)
				r.Post("/regenerate-token", adminHandler.RegenerateToken)
			})

			// Administration
			r.Post("/organizations", adminHandler.CreateOrganization)
			r.Get("/audit-log", adminHandler.AuditLog)
			r.Get("/pool", adminHandler.PoolStatus)
			r.Route("/compliance", func(r chi.Router) {
				r.Post("/dnc", complianceHandler.AddDNC)
				r.Delete("/dnc", complianceHandler.RemoveDNC)
				r.Post("/disclosure", complianceHandler.SetDisclosure)
			})
		})
	})

	return app
}

// Start launches the background workers.
func (app *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	app.stopLimiter = cancel
	go app.limiter.Run(ctx)
	app.Janitor.Start()
}

func (app *App) Stop() {
	if app.stopLimiter != nil {
		app.stopLimiter()
	}
	app.Janitor.Stop()
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.OrganizationStore = (*store.OrganizationStore)(nil)
	_ domain.AgentStore        = (*store.AgentStore)(nil)
	_ domain.TokenStore        = (*store.TokenStore)(nil)
	_ domain.LimitsStore       = (*store.LimitsStore)(nil)
	_ domain.UsageStore        = (*store.UsageStore)(nil)
	_ domain.DeadLetterStore   = (*store.DeadLetterStore)(nil)
	_ domain.CallLogStore      = (*store.CallLogStore)(nil)
	_ domain.PoolStore         = (*store.PoolStore)(nil)
	_ domain.DNCStore          = (*store.DNCStore)(nil)
	_ domain.AuditStore        = (*store.AuditStore)(nil)
	_ domain.OrganizationStore = (*memstore.OrganizationStore)(nil)
	_ domain.AgentStore        = (*memstore.AgentStore)(nil)
	_ domain.TokenStore        = (*memstore.TokenStore)(nil)
	_ domain.LimitsStore       = (*memstore.LimitsStore)(nil)
	_ domain.UsageStore        = (*memstore.UsageStore)(nil)
	_ domain.DeadLetterStore   = (*memstore.DeadLetterStore)(nil)
	_ domain.CallLogStore      = (*memstore.CallLogStore)(nil)
	_ domain.PoolStore         = (*memstore.PoolStore)(nil)
	_ domain.DNCStore          = (*memstore.DNCStore)(nil)
	_ domain.AuditStore        = (*memstore.AuditStore)(nil)
)
