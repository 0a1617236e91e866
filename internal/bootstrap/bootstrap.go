// Package bootstrap assembles the ledger's storage backend, event path and
// service from configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledger/internal/app/ledger"
	"ledger/internal/config"
	"ledger/internal/credential"
	"ledger/internal/infrastructure/database"
	"ledger/internal/repository/accounts_repo"
	memaccounts "ledger/internal/repository/accounts_repo/memory"
	mysqlaccounts "ledger/internal/repository/accounts_repo/mysql"
	pgaccounts "ledger/internal/repository/accounts_repo/postgres"
	"ledger/internal/repository/transfers_repo"
	memtransfers "ledger/internal/repository/transfers_repo/memory"
	mysqltransfers "ledger/internal/repository/transfers_repo/mysql"
	pgtransfers "ledger/internal/repository/transfers_repo/postgres"
)

// NewLogger builds the production JSON logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = lvl
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	return zapConfig.Build()
}

// Backend is the account store and transfer journal selected by
// config.Store. DB is set only for postgres, where it also carries the
// outbox.
type Backend struct {
	Accounts accounts_repo.AccountStore
	Journal  transfers_repo.Journal
	DB       *sql.DB

	closers []func() error
}

func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger)
	case config.StoreMySQL:
		return openMySQL(ctx, cfg, logger)
	case config.StoreMemory:
		logger.Warn("Using in-memory store, balances are lost on exit")
		return &Backend{
			Accounts: memaccounts.NewStore(),
			Journal:  memtransfers.NewJournal(),
		}, nil
	}
	return nil, fmt.Errorf("unsupported store %q", cfg.Store)
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	dbConfig := database.DBConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.Name,
		SSLMode:  cfg.Postgres.SSLMode,
	}

	logger.Info("Waiting for database to be available...")
	db, err := database.ConnectPostgres(ctx, dbConfig, cfg.DBConnectRetries, cfg.DBRetryDelay, logger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(cfg.MigrationsPath, dbConfig.MigrationURL(), logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Backend{
		Accounts: pgaccounts.NewAccountRepository(db),
		Journal:  pgtransfers.NewTransferRepository(db),
		DB:       db,
		closers:  []func() error{db.Close},
	}, nil
}

func runMigrations(sourceURL, databaseURL string, logger *zap.Logger) error {
	logger.Info("Running database migrations...")
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")
	return nil
}

func openMySQL(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	gdb, err := database.NewMySQL(ctx, database.MySQLConfig{
		Host:            cfg.MySQL.Host,
		Port:            cfg.MySQL.Port,
		User:            cfg.MySQL.User,
		Password:        cfg.MySQL.Password,
		DBName:          cfg.MySQL.Name,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		LogLevel:        cfg.MySQL.LogLevel,
	}, cfg.DBConnectRetries, cfg.DBRetryDelay, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying mysql connection: %w", err)
	}

	accounts := mysqlaccounts.NewAccountRepository(gdb)
	journal := mysqltransfers.NewTransferRepository(gdb)
	if err := accounts.AutoMigrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate accounts table: %w", err)
	}
	if err := journal.AutoMigrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate pending_transfers table: %w", err)
	}

	return &Backend{
		Accounts: accounts,
		Journal:  journal,
		closers:  []func() error{sqlDB.Close},
	}, nil
}

// Close releases every connection the backend opened.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewLedgerService applies the ledger section of cfg. publisher may be nil.
func NewLedgerService(cfg *config.Config, b *Backend, publisher ledger.EventPublisher, logger *zap.Logger) *ledger.Service {
	opts := []ledger.Option{
		ledger.WithHasher(credential.NewBcryptHasher(cfg.Ledger.BcryptCost)),
		ledger.WithPolicy(credential.Policy{
			MinLength:  cfg.Ledger.CredentialMinLength,
			DigitsOnly: cfg.Ledger.CredentialDigitsOnly,
		}),
		ledger.WithJournal(b.Journal),
		ledger.WithCurrencyScale(cfg.Ledger.CurrencyScale),
		ledger.WithLogger(logger.With(zap.String("component", "LedgerService"))),
	}
	if publisher != nil {
		opts = append(opts, ledger.WithEventPublisher(publisher))
	}
	return ledger.NewService(b.Accounts, opts...)
}
