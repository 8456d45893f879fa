package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/phaseline/phaseline/internal/adapter/gitea"
	"github.com/phaseline/phaseline/internal/adapter/gitlocal"
	plhttp "github.com/phaseline/phaseline/internal/adapter/http"
	plnats "github.com/phaseline/phaseline/internal/adapter/nats"
	"github.com/phaseline/phaseline/internal/adapter/natskv"
	plotel "github.com/phaseline/phaseline/internal/adapter/otel"
	"github.com/phaseline/phaseline/internal/adapter/postgres"
	"github.com/phaseline/phaseline/internal/adapter/responderhttp"
	"github.com/phaseline/phaseline/internal/adapter/ristretto"
	"github.com/phaseline/phaseline/internal/adapter/slack"
	"github.com/phaseline/phaseline/internal/adapter/tiered"
	"github.com/phaseline/phaseline/internal/adapter/ws"
	"github.com/phaseline/phaseline/internal/config"
	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/routing"
	"github.com/phaseline/phaseline/internal/git"
	"github.com/phaseline/phaseline/internal/logger"
	"github.com/phaseline/phaseline/internal/middleware"
	"github.com/phaseline/phaseline/internal/port/cache"
	"github.com/phaseline/phaseline/internal/port/messagequeue"
	"github.com/phaseline/phaseline/internal/port/vcsprovider"
	"github.com/phaseline/phaseline/internal/port/workspace"
	"github.com/phaseline/phaseline/internal/resilience"
	"github.com/phaseline/phaseline/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"routes", len(cfg.Routes),
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := plotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	var metrics *plotel.Metrics
	if cfg.Telemetry.Enabled {
		metrics, err = plotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	// PostgreSQL
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	store := postgres.NewStore(pool)
	auditLog := postgres.NewAuditLog(pool)

	// NATS
	queue, err := plnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Session history cache. With a shared bucket configured the in-process
	// cache is layered over NATS KV so replicas see each other's writes.
	l1, err := ristretto.New(cfg.Cache.SessionHistoryMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()

	var historyCache cache.Cache = l1
	if cfg.Cache.SharedBucket != "" {
		kv, kvErr := queue.KeyValue(ctx, cfg.Cache.SharedBucket, cfg.Session.TTL)
		if kvErr != nil {
			return fmt.Errorf("cache kv: %w", kvErr)
		}
		historyCache = tiered.New(l1, natskv.New(kv), time.Minute)
		slog.Info("shared session cache enabled", "bucket", cfg.Cache.SharedBucket)
	}

	// Responder HTTP client
	client := responderhttp.NewClient()
	client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// Optional collaborators
	var vcs vcsprovider.Provider
	if cfg.VCS.BaseURL != "" {
		provider, vcsErr := gitea.NewProvider(cfg.VCS.BaseURL, cfg.VCS.Token, cfg.VCS.Repo)
		if vcsErr != nil {
			return fmt.Errorf("vcs: %w", vcsErr)
		}
		vcs = provider
		slog.Info("issue mirroring enabled", "repo", cfg.VCS.Repo)
	}

	var workspaces workspace.Manager
	if cfg.Workspace.Root != "" {
		manager, wsErr := gitlocal.NewManager(cfg.Workspace.Root, cfg.Workspace.BaseRepo,
			git.NewPool(cfg.Workspace.MaxParallel))
		if wsErr != nil {
			return fmt.Errorf("workspace: %w", wsErr)
		}
		workspaces = manager
		slog.Info("workspace provisioning enabled", "root", cfg.Workspace.Root)
	}

	// --- Services ---
	table, err := routing.NewTable(cfg.Routes)
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	hub := ws.NewHub()
	sessionSvc := service.NewSessionService(store, historyCache, cfg.Session.TTL)
	routerSvc := service.NewRouterService(table, client, sessionSvc,
		int64(cfg.Dispatch.MaxConcurrent), cfg.Dispatch.Timeout, metrics)
	escalationSvc := service.NewEscalationService(store, hub, queue, metrics,
		cfg.Escalation.Deadline, cfg.Escalation.MaxReescalations)
	exchangeSvc := service.NewExchangeService(routerSvc, escalationSvc, auditLog,
		metrics, cfg.Validation.DefaultThreshold)
	workflowSvc := service.NewWorkflowService(store, queue, hub, metrics, exchangeSvc,
		vcs, workspaces, cfg.Workflow.MaxReworks, cfg.Workflow.ReplayWindow)

	// Slack notifications for new escalations
	if cfg.Notify.SlackWebhookURL != "" {
		slackNotifier := slack.NewNotifier(cfg.Notify.SlackWebhookURL)
		stop, subErr := queue.Subscribe(ctx, messagequeue.SubjectEscalationCreated, func(_ string, data []byte) error {
			var esc escalation.Escalation
			if err := json.Unmarshal(data, &esc); err != nil {
				return fmt.Errorf("decode escalation event: %w", err)
			}
			return slackNotifier.EscalationCreated(ctx, esc)
		})
		if subErr != nil {
			return fmt.Errorf("slack subscription: %w", subErr)
		}
		defer stop()
		slog.Info("slack escalation notifications enabled")
	}

	// --- HTTP ---
	handlers := &plhttp.Handlers{
		Workflows:   workflowSvc,
		Sessions:    sessionSvc,
		Escalations: escalationSvc,
		Exchange:    exchangeSvc,
		Router:      routerSvc,
		Hub:         hub,
		DB:          pool,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		stopCleanup := rl.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		r.Use(rl.Handler)
	}
	r.Use(plhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(plhttp.SecurityHeaders)
	r.Use(plhttp.Logger)
	if cfg.Telemetry.Enabled {
		r.Use(plotel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	plhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
