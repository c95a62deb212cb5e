// cmd/escrowd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blockvenue/escrowd/internal/auth"
	"github.com/blockvenue/escrowd/internal/cache"
	"github.com/blockvenue/escrowd/internal/config"
	"github.com/blockvenue/escrowd/internal/database"
	"github.com/blockvenue/escrowd/internal/handler"
	"github.com/blockvenue/escrowd/internal/metadata"
	"github.com/blockvenue/escrowd/internal/repository"
	"github.com/blockvenue/escrowd/internal/service"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, logger)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")

	// ── 2. Connect to Redis and MongoDB ──────────────────────────────────
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	mongoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mg, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Error("mongo connect", "error", err)
		os.Exit(1)
	}
	defer func() { _ = mg.Disconnect(context.Background()) }()
	metaStore := metadata.NewStore(mg.Database(cfg.MongoDatabase).Collection("metadata"))

	// ── 3. Wire up layers ────────────────────────────────────────────────
	svc := service.New(repo, logger)
	if err := svc.Restore(ctx); err != nil {
		logger.Error("restore ledgers", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	inv := cache.NewInvalidator(rdb)
	h := handler.New(svc, metaStore, tokens, inv)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(logger))  // structured access log
	r.Use(handler.CORS)            // permissive CORS for browser clients
	r.Use(cache.ResponseCache(rdb, cfg.CacheTTL))

	r.Get("/health", handler.HealthCheck)
	r.Post("/auth/token", h.IssueToken)
	r.Get("/metadata/{digest}", h.ResolveMetadata)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Get("/{id}/participants", h.ListParticipants)
		r.Get("/{id}/payout", h.PayoutPreview)
		r.Get("/{id}/notifications", h.ListNotifications)

		// Everything that mutates a ledger needs a caller address.
		r.Group(func(r chi.Router) {
			r.Use(handler.Authenticate(tokens))
			r.Post("/", h.CreateEvent)
			r.Post("/{id}/register", h.Register)
			r.Post("/{id}/attend", h.Attend)
			r.Post("/{id}/payback", h.Payback)
			r.Post("/{id}/cancel", h.Cancel)
			r.Post("/{id}/withdraw", h.Withdraw)
			r.Post("/{id}/clear", h.Clear)
			r.Patch("/{id}/name", h.UpdateName)
			r.Patch("/{id}/limit", h.UpdateLimit)
			r.Patch("/{id}/owner", h.TransferOwner)
			r.Post("/{id}/admins", h.GrantAdmins)
			r.Delete("/{id}/admins", h.RevokeAdmins)
			r.Put("/{id}/metadata", h.UploadMetadata)
		})
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
