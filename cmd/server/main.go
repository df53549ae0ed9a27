// takeover - live handoff and escalation engine for the portfolio chat widget
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/avdeev/takeover/internal/admin"
	"github.com/avdeev/takeover/internal/ai"
	"github.com/avdeev/takeover/internal/api"
	"github.com/avdeev/takeover/internal/command"
	"github.com/avdeev/takeover/internal/config"
	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/live"
	"github.com/avdeev/takeover/internal/middleware"
	"github.com/avdeev/takeover/internal/notify"
	"github.com/avdeev/takeover/internal/operator"
	"github.com/avdeev/takeover/internal/store"
	"github.com/avdeev/takeover/internal/telemetry"
	"github.com/avdeev/takeover/internal/transcript"
	"github.com/avdeev/takeover/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryLogDir)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, cfg.TypingTTL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	transcripts, err := transcript.NewLogger(cfg.Transcript)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()
	repo.SetMessageObserver(func(msg domain.Message) {
		transcripts.Log(transcript.FromMessage(msg))
	})

	metrics := telemetry.NewMetrics()
	deduper := notify.NewMemoryDeduper()
	dispatcher := notify.NewDispatcher(cfg.ChatopsWebhookURL, deduper, metrics)
	if cfg.ChatopsWebhookURL == "" {
		slog.Info("CHATOPS_WEBHOOK_URL not set, alerts will be logged locally")
	}

	var responder ai.Responder
	if cfg.Responder.APIKey != "" {
		responder = ai.NewHTTPResponder(cfg.Responder)
	} else {
		slog.Info("RESPONDER_API_KEY not set, AI replies use a static fallback")
		responder = ai.NewStaticResponder()
	}

	engine := live.NewEngine(repo, dispatcher, responder, metrics)
	actions := operator.NewActions(repo)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := live.NewHandler(repo, engine, deduper, cfg.FrontendURL, cfg.IsDevelopment())
	commandHandler := command.NewHandler(actions, metrics)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Inbound operator command webhook.
	commandHandler.RegisterRoutes(r)

	// WebSocket endpoint for the visitor chat widget.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Operator console, mounted on an unlisted path and gated by secret.
	if cfg.AdminEnabled() {
		r.Route(cfg.AdminPath, func(r chi.Router) {
			adminHandler := admin.NewHandler(repo, actions, cfg.AdminSecret)
			adminHandler.RegisterRoutes(r)
			r.Handle("/*", http.StripPrefix(cfg.AdminPath, web.ConsoleHandler()))
		})
		slog.Info("Operator console mounted", "path", cfg.AdminPath)
	} else {
		slog.Info("Operator console disabled (ADMIN_SECRET not set)")
	}

	// Create server.
	// WebSocket connections are long-lived, so no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start idle-session sweeper.
	store.StartSweeper(ctx, repo, cfg.SweepInterval, cfg.SessionIdleTTL)
	slog.Info("Idle sweeper started", "interval", cfg.SweepInterval, "ttl", cfg.SessionIdleTTL)

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

// corsOrigins limits cross-origin access to the widget's frontend; wide open
// in development.
func corsOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
