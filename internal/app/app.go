// Package app wires configuration into a running set of repositories,
// storage providers and services. Both the server and the admin CLI use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/database"
	"github.com/prn-tf/contract-storage/internal/handler"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/pkg/crypto"
	"github.com/prn-tf/contract-storage/internal/repository"
	"github.com/prn-tf/contract-storage/internal/service"
	"github.com/prn-tf/contract-storage/internal/storage"
	"github.com/prn-tf/contract-storage/internal/transfer"
)

// App holds every long-lived component built from a Config.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Database repository.Database
	Repos    *repository.Repositories
	Locker   lock.Locker
	Metrics  *metrics.Metrics
	Sealer   *crypto.Sealer
	Storage  *storage.Factory

	Backups    *service.BackupService
	Versions   *service.VersioningService
	Migrations *service.MigrationService
	Usage      *service.UsageService
	Billing    *service.BillingService
	Scheduler  *service.Scheduler

	closers []func() error
}

// Options adjusts how New builds the App.
type Options struct {
	// Migrate applies the embedded schema before anything else runs.
	// The server sets it for sqlite, where no separate migrate step exists.
	Migrate bool
}

// New opens the database, picks the locker and builds every service.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	opened, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.Database = opened.Database
	a.Repos = opened.Repos
	a.closers = append(a.closers, opened.Database.Close)

	if opts.Migrate {
		if err := a.Database.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	if err := a.openLocker(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	if cfg.Security.CredentialsKey != "" {
		a.Sealer, err = crypto.NewSealerFromHex(cfg.Security.CredentialsKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create credentials sealer: %w", err)
		}
	}

	primary, err := openPrimary(ctx, cfg.Storage.Primary)
	if err != nil {
		a.Close()
		return nil, err
	}

	factoryOpts := []storage.FactoryOption{storage.WithSealer(a.Sealer)}
	if a.Metrics != nil {
		factoryOpts = append(factoryOpts, storage.WithTransferRecorder(a.Metrics))
	}
	a.Storage = storage.NewFactory(a.Repos.StorageConfig, primary, logger, factoryOpts...)

	a.buildServices()

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("primary", cfg.Storage.Primary.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Bool("metrics", cfg.Metrics.Enabled).
		Bool("sealer", a.Sealer != nil).
		Msg("Application initialized")
	return a, nil
}

func (a *App) openLocker(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		memory := lock.NewMemoryLocker()
		a.Locker = memory
		a.closers = append(a.closers, func() error { memory.Close(); return nil })
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        a.Config.Redis.Addr(),
		Password:    a.Config.Redis.Password,
		DB:          a.Config.Redis.DB,
		PoolSize:    a.Config.Redis.PoolSize,
		DialTimeout: a.Config.Redis.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", a.Config.Redis.Addr(), err)
	}
	a.Locker = lock.NewRedisLocker(client, "contractstore:lock:")
	a.closers = append(a.closers, client.Close)
	return nil
}

func openPrimary(ctx context.Context, cfg config.PrimaryStorageConfig) (storage.PrimaryFunc, error) {
	if cfg.Backend == "memory" {
		return storage.MemoryPrimary(storage.NewMemoryBucket(cfg.Bucket)), nil
	}
	store, err := storage.NewPrimaryObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary store: %w", err)
	}
	return storage.S3Primary(store), nil
}

func (a *App) buildServices() {
	cfg := a.Config
	repos := a.Repos

	fetcher := transfer.NewHTTPFetcher(cfg.Storage.TransferTimeout, cfg.Storage.MaxDocumentSize)
	transferConfig := service.TransferConfig{Timeout: cfg.Storage.TransferTimeout}
	batch := service.NewBatchRunner(a.Locker, a.Metrics, a.Logger, service.BatchConfig{
		Workers: cfg.Batch.Workers,
		LockTTL: cfg.Batch.LockTTL,
	})

	a.Backups = service.NewBackupService(
		repos.Contracts,
		repos.Backups,
		a.Storage,
		fetcher,
		batch,
		a.Metrics,
		a.Logger,
		transferConfig,
	)
	a.Versions = service.NewVersioningService(repos.Contracts, repos.Backups, a.Backups, a.Logger)
	a.Migrations = service.NewMigrationService(
		repos.Contracts,
		repos.Migrations,
		a.Storage,
		fetcher,
		batch,
		a.Metrics,
		a.Logger,
		transferConfig,
	)
	a.Usage = service.NewUsageService(repos.Organizations, repos.Usage, a.Storage, batch, a.Metrics, a.Logger)
	a.Billing = service.NewBillingService(
		repos.Organizations,
		repos.Usage,
		repos.Billing,
		repos.Pricing,
		a.Usage,
		batch,
		a.Metrics,
		a.Logger,
	)
	a.Scheduler = service.NewScheduler(repos.Organizations, a.Backups, a.Usage, a.Billing, a.Logger, service.SchedulerConfig{
		DailyBackupInterval: cfg.Scheduler.DailyBackupInterval,
		UsageInterval:       cfg.Scheduler.UsageInterval,
		BillingInterval:     cfg.Scheduler.BillingInterval,
	})
}

// Handler builds the HTTP API over the App's services.
func (a *App) Handler() http.Handler {
	rc := handler.RouterConfig{
		Backups:     a.Backups,
		Versions:    a.Versions,
		Migrations:  a.Migrations,
		Usage:       a.Usage,
		Billing:     a.Billing,
		Health:      a.Database,
		MaxBodySize: a.Config.Server.MaxBodySize,
		Logger:      a.Logger,
	}
	if a.Metrics != nil {
		rc.Metrics = a.Metrics.Handler()
		rc.MetricsPath = a.Config.Metrics.Path
	}
	return handler.NewRouter(rc).Handler()
}

// Close releases every resource opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
