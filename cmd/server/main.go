package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvoicu/slotboard/internal/config"
	"github.com/dvoicu/slotboard/internal/database"
	"github.com/dvoicu/slotboard/internal/display"
	"github.com/dvoicu/slotboard/internal/handler"
	"github.com/dvoicu/slotboard/internal/lease"
	"github.com/dvoicu/slotboard/internal/memstore"
	"github.com/dvoicu/slotboard/internal/panel"
	"github.com/dvoicu/slotboard/internal/redisstore"
	"github.com/dvoicu/slotboard/internal/store"
	"github.com/dvoicu/slotboard/pkg/middleware"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting Slotboard", "version", version, "store_backend", cfg.StoreBackend)

	if cfg.ReleasePolicy != config.ReleasePolicyChoose && cfg.ReleasePolicy != config.ReleasePolicySingle {
		slog.Error("Invalid release policy", "release_policy", cfg.ReleasePolicy)
		os.Exit(1)
	}
	if cfg.SlotCount < 1 {
		slog.Error("Slot count must be at least 1", "slot_count", cfg.SlotCount)
		os.Exit(1)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect the store backend
	var slotStore store.SlotStore
	var metaStore store.MetaStore
	closeStore := func() {}

	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		if err := database.CreateIndexes(ctx, db); err != nil {
			slog.Error("Failed to create indexes", "error", err)
			os.Exit(1)
		}
		slotStore = database.NewSlotRepository(db)
		metaStore = database.NewMetaRepository(db)
		closeStore = func() {
			if err := db.Disconnect(context.Background()); err != nil {
				slog.Error("Failed to disconnect from MongoDB", "error", err)
			}
		}
	case config.StoreBackendRedis:
		rs, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slotStore = rs
		metaStore = rs
		closeStore = func() {
			if err := rs.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}
	case config.StoreBackendMemory:
		ms := memstore.New()
		slotStore = ms
		metaStore = ms
		slog.Warn("Using in-memory store; state will not survive restarts")
	default:
		slog.Error("Unknown store backend", "store_backend", cfg.StoreBackend)
		os.Exit(1)
	}
	defer closeStore()

	// Create the fixed slot table
	if err := slotStore.InitSlots(ctx, cfg.SlotCount); err != nil {
		slog.Error("Failed to initialize slots", "error", err)
		os.Exit(1)
	}

	// Initialize the lease manager and panel controller
	leaseManager := lease.NewManager(slotStore, cfg.SlotCount, cfg.LeaseDuration, cfg.ReleasePolicy)

	displayClient := display.NewClient(display.Config{
		BaseURL:   cfg.DisplayURL,
		AuthToken: cfg.DisplayAuthToken,
		IDPath:    cfg.DisplayIDPath,
		Timeout:   cfg.DisplayTimeout,
	})

	panelController := panel.NewController(leaseManager, metaStore, displayClient)

	refresher, err := panel.NewRefresher(cfg, panelController)
	if err != nil {
		slog.Error("Failed to create panel refresher", "error", err)
		os.Exit(1)
	}
	refresher.Start(ctx)

	// Rate limiting for the mutation triggers
	limiters := middleware.NewRateLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiters.StartJanitor(ctx.Done())

	// Initialize handlers
	slotHandler := handler.NewSlotHandler(leaseManager, panelController)
	healthHandler := handler.NewHealthHandler(slotStore, cfg.StoreBackend, version)

	corsConfig := middleware.CORSConfig{
		AllowedOrigins: "*",
		AllowedMethods: "GET, POST, OPTIONS",
		AllowedHeaders: "*",
		MaxAge:         3600,
	}

	router := handler.NewRouter(slotHandler, healthHandler, corsConfig, limiters)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the refresher first so no tick runs against a closing store
	slog.Info("Stopping panel refresher...")
	refresher.Stop(shutdownCtx)

	// Shutdown HTTP server
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Slotboard stopped")
}
