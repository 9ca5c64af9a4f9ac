package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intervention-engine/internal/config"
	"intervention-engine/internal/database"
	"intervention-engine/internal/handlers"
	"intervention-engine/internal/logger"
	"intervention-engine/internal/metrics"
	"intervention-engine/internal/middleware"
	"intervention-engine/internal/repository"
	"intervention-engine/internal/router"
	"intervention-engine/internal/services"
	"intervention-engine/internal/websocket"
)

func main() {
	// ──── Step 1: Load Configuration ────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zapLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger initialization failed: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting intervention engine", zap.String("env", cfg.Env))

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	zapLogger.Info("postgres connected")

	// ──── Step 3: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir, zapLogger); err != nil {
		zapLogger.Fatal("database migration failed", zap.Error(err))
	}

	// ──── Step 4: Initialize Redis Clients (optional) ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()

	var publishClient, pubsubClient *redis.Client
	if redisClients != nil {
		publishClient, pubsubClient = redisClients.Publish, redisClients.PubSub
		zapLogger.Info("redis connected, cross-instance fan-out enabled")
	} else {
		zapLogger.Info("REDIS_URL not set, events are delivered in-process only")
	}

	// ──── Step 5: Initialize Services ────
	m := metrics.New()
	store := repository.NewStore(pool)
	wsHub := websocket.NewHub(publishClient, pubsubClient, middleware.OriginChecker(cfg.AllowedOrigins), m, zapLogger.Named("hub"))
	notifier := services.NewWorkflowNotifier(cfg.WorkflowWebhookURL, cfg.WorkflowTimeout, m, zapLogger.Named("workflow"))
	interventionService := services.NewInterventionService(store, wsHub, notifier, m, zapLogger.Named("service"))

	// ──── Step 6: Start Auto-unlock Sweep ────
	scheduler := services.NewAutoUnlockScheduler(cfg.AutoUnlockCron, cfg.AutoUnlockAfter, store, interventionService, zapLogger.Named("auto_unlock"))
	if err := scheduler.Start(); err != nil {
		zapLogger.Fatal("invalid AUTO_UNLOCK_CRON", zap.String("schedule", cfg.AutoUnlockCron), zap.Error(err))
	}

	// ──── Step 7: Start HTTP Server ────
	mentorAuth := middleware.NewMentorAuth(cfg.MentorJWTSecret)
	if !mentorAuth.Enabled() {
		zapLogger.Warn("MENTOR_JWT_SECRET not set, mentor routes are open")
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	defer limiter.Close()

	r := router.New(
		handlers.NewInterventionHandler(interventionService, zapLogger.Named("http")),
		handlers.NewHealthHandler(pool),
		wsHub,
		mentorAuth,
		limiter,
		m,
		zapLogger.Named("access"),
		cfg.AllowedOrigins,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		zapLogger.Info("shutting down")
		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zapLogger.Error("http shutdown failed", zap.Error(err))
		}
		// Hijacked websocket connections are not tracked by Shutdown
		wsHub.Close()
	}()

	zapLogger.Info("intervention engine ready",
		zap.String("addr", server.Addr),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		zapLogger.Fatal("server error", zap.Error(err))
	}
	<-done
}
