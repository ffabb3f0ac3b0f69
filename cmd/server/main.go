// letushack labs server - CTF platform backend
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

	"github.com/letushack/labs-server/internal/api"
	"github.com/letushack/labs-server/internal/config"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/lab"
	"github.com/letushack/labs-server/internal/middleware"
	"github.com/letushack/labs-server/internal/notify"
	"github.com/letushack/labs-server/internal/runtime"
	"github.com/letushack/labs-server/internal/store"
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

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	docker, err := runtime.NewDocker()
	if err != nil {
		slog.Error("Failed to initialize Docker client", "error", err)
		os.Exit(1)
	}

	labs := lab.NewManager(docker, repo, lab.Options{
		PortBase:    cfg.LabPortBase,
		PortRange:   cfg.LabPortRange,
		CallTimeout: cfg.DockerCallTimeout,
	})

	// Resynchronize tracked sessions with persisted state. The runtime may
	// legitimately be down at startup; sessions are then reconciled lazily
	// on the next pass rather than blocking boot.
	if labs.Available(context.Background()) {
		if err := labs.Reconcile(context.Background()); err != nil {
			slog.Error("Session reconciliation failed", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("Container runtime unavailable at startup, skipping reconciliation")
	}

	auth := identity.NewAuthenticator(cfg.JWTSecret, !cfg.IsDevelopment())
	hub := notify.NewHub()

	// Initialize handlers.
	base := api.NewHandler(repo, labs, hub, auth, cfg)
	labsHandler := api.NewLabsHandler(base)
	authHandler := api.NewAuthHandler(base)
	scoresHandler := api.NewScoresHandler(base)
	notificationsHandler := api.NewNotificationsHandler(base)
	flagsHandler := api.NewFlagsHandler(base)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	corsOrigins := []string{cfg.FrontendURL}
	if cfg.FrontendURL == "" {
		corsOrigins = []string{"*"}
	}
	r.Use(middleware.CORS(corsOrigins))
	r.Use(auth.Middleware())

	// Public routes.
	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)

	// Feature routes.
	labsHandler.RegisterRoutes(r)
	scoresHandler.RegisterRoutes(r)
	notificationsHandler.RegisterRoutes(r)
	flagsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket notification feeds stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
