package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ledger/internal/bootstrap"
	"ledger/internal/config"
	ledger_http "ledger/internal/handler/http/ledger"
	"ledger/internal/reconcile"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Ledger service starting...", zap.String("store", cfg.Store))

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	startupCtx, cancelStartup := context.WithTimeout(ctxMain, 2*time.Minute)
	defer cancelStartup()

	backend, err := bootstrap.OpenBackend(startupCtx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	events, err := bootstrap.NewEvents(startupCtx, cfg, backend, true, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to set up ledger events", zap.Error(err))
	}
	defer func() {
		if err := events.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	ledgerService := bootstrap.NewLedgerService(cfg, backend, events.Publisher, appLogger)
	appLogger.Info("Ledger Service initialized.")

	reconciler := reconcile.NewReconciler(
		backend.Journal,
		events.Publisher,
		cfg.Reconciler.Interval,
		cfg.Reconciler.StaleAfter,
		cfg.Reconciler.BatchSize,
		appLogger.With(zap.String("component", "Reconciler")),
	)

	if cfg.AdminToken == "" {
		appLogger.Info("LEDGER_ADMIN_TOKEN not set, account provisioning over HTTP is disabled")
	}
	router := ledger_http.NewRouter(ledgerService, appLogger, cfg.CORSAllowedOrigins, cfg.AdminToken)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Start(ctxMain)
	}()

	if events.Processor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events.Processor.Start(ctxMain)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	cancelMain()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline.")
	}

	appLogger.Info("Application gracefully shut down.")
}
