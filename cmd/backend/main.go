// Package main is the entry point for the SnapLink short-link service.
package main

import (
	"SnapLink-Backend/internal/analytics"
	"SnapLink-Backend/internal/auth"
	"SnapLink-Backend/internal/cache"
	"SnapLink-Backend/internal/config"
	"SnapLink-Backend/internal/database"
	httpHandler "SnapLink-Backend/internal/handler/http"
	"SnapLink-Backend/internal/repository/postgres"
	"SnapLink-Backend/internal/service"
	"SnapLink-Backend/pkg/classifier"
	"SnapLink-Backend/pkg/keygen"
	"SnapLink-Backend/pkg/logger"
	"context"
	"fmt"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	defer func() {
		if err := log.Sync(); err != nil {
			lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
		}
	}()

	log.Info("starting snaplink service", zap.String("env", cfg.Env))

	// Database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, log); err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}
	} else {
		log.Info("skipping database migrations (auto_migrate: false)")
	}

	storage := postgres.New(db, log)

	// Link cache in front of the store
	linkCache := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL, log)

	// Key generator
	gen, err := keygen.New(cfg.Resolver.KeyLength)
	if err != nil {
		log.Fatal("invalid key length", zap.Error(err))
	}

	// Analytics pipeline: recorder workers plus the daily aggregator
	cls := classifier.New(cfg.Analytics.RegexesPath, log)
	recorder := analytics.NewRecorder(storage, cls, log, analytics.Config{
		WorkerCount:     cfg.Analytics.WorkerCount,
		BufferSize:      cfg.Analytics.BufferSize,
		MaxBatchSize:    cfg.Analytics.MaxBatchSize,
		BatchTimeout:    cfg.Analytics.BatchTimeout,
		ShutdownTimeout: cfg.Analytics.ShutdownTimeout,
	})
	if err := recorder.Start(); err != nil {
		log.Fatal("failed to start click recorder", zap.Error(err))
	}

	aggregator := analytics.NewAggregator(storage, cfg.Analytics.AggregationInterval, cfg.Analytics.AggregationWindow, log)
	aggregator.Start()

	// Resolution service and the expired-link sweeper
	resolver := service.NewResolver(storage, linkCache, gen, recorder, &cfg.Resolver, log)

	sweeper := service.NewSweeper(storage, cfg.Resolver.SweepInterval, log)
	sweeper.Start()

	// HTTP server
	apiKeyAuth := auth.NewMiddleware(storage, log)
	httpServer := httpHandler.NewServer(resolver, apiKeyAuth, db, log, cfg.Resolver.BaseURL, cfg.Resolver.RedirectCode)

	addr := fmt.Sprintf(":%d", cfg.HTTPServer.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      httpServer.SetupRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down snaplink service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.WriteTimeout)
	defer shutdownCancel()

	// Stop accepting requests first, then drain the analytics queue so
	// pending clicks reach the store before the connection closes.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	sweeper.Stop()
	aggregator.Stop()

	if err := recorder.Stop(); err != nil {
		log.Error("failed to drain click recorder", zap.Error(err))
	}

	log.Info("snaplink service stopped")
}
