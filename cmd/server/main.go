// Quarrel Labs - advisor council battle server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/api"
	"github.com/ashureev/quarrel-labs/internal/config"
	"github.com/ashureev/quarrel-labs/internal/engine"
	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/ashureev/quarrel-labs/internal/identity"
	"github.com/ashureev/quarrel-labs/internal/media"
	"github.com/ashureev/quarrel-labs/internal/middleware"
	"github.com/ashureev/quarrel-labs/internal/store"
	"github.com/ashureev/quarrel-labs/internal/telemetry"
	"github.com/ashureev/quarrel-labs/internal/transcript"
	"github.com/ashureev/quarrel-labs/internal/voice"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "gateway", cfg.UseGateway())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	transport, closeTransport, err := generation.Open(ctx, cfg.GenerationOpenConfig(), logger)
	if err != nil {
		slog.Error("Failed to initialize generation transport", "error", err)
		os.Exit(1)
	}
	defer closeTransport()

	client := generation.NewClient(transport,
		generation.WithRetryPolicy(cfg.RetryPolicy()),
		generation.WithLogger(logger),
	)

	registry, err := advisor.Default()
	if err != nil {
		slog.Error("Failed to load advisor catalogue", "error", err)
		os.Exit(1)
	}
	selector := advisor.NewSelector(client, registry, logger)
	pipeline := media.NewPipeline(client, registry, logger)
	narrator := voice.NewNarrator(client, registry, logger)

	transcripts, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Warn("Failed to close transcript logger", "error", closeErr)
		}
	}()

	streams := api.NewStreams()
	arena := engine.NewArena(func(ownerID string) *engine.Engine {
		return engine.New(ownerID, engine.Deps{
			Registry:   registry,
			Selector:   selector,
			Advisor:    client,
			Media:      pipeline,
			Repository: repo,
			Logger:     logger,
		})
	})
	arena.OnNew(func(_ string, e *engine.Engine) {
		e.Subscribe(streams.Broadcast)
		e.Subscribe(transcripts.Observe)
	})

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	handler := api.NewHandler(api.Deps{
		Arena:         arena,
		Repo:          repo,
		Registry:      registry,
		Narrator:      narrator,
		Limiter:       limiter,
		Streams:       streams,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// WriteTimeout stays 0: turns can run for minutes and /ws/battle is long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	arena.StartSweeper(ctx, cfg.EngineIdleTTL)
	slog.Info("Engine sweeper started", "idle_ttl", cfg.EngineIdleTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
