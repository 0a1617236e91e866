package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ledger/internal/bootstrap"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/domain"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}

	factory := func(ctx context.Context) (cli.LedgerService, func(), error) {
		backend, err := bootstrap.OpenBackend(ctx, cfg, logger)
		if err != nil {
			return nil, nil, domain.Persistence("open ledger store", err)
		}
		events, err := bootstrap.NewEvents(ctx, cfg, backend, false, logger)
		if err != nil {
			backend.Close()
			return nil, nil, domain.Persistence("open event publisher", err)
		}
		svc := bootstrap.NewLedgerService(cfg, backend, events.Publisher, logger)
		release := func() {
			if err := events.Close(); err != nil {
				logger.Error("Error closing event publisher", zap.Error(err))
			}
			if err := backend.Close(); err != nil {
				logger.Error("Error closing database connection", zap.Error(err))
			}
		}
		return svc, release, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, cli.NewRootCommand(factory))
	stop()
	_ = logger.Sync()
	os.Exit(code)
}
