// Package database opens the configured record store and returns its repositories.
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/repository"
	"github.com/prn-tf/contract-storage/internal/repository/postgres"
	"github.com/prn-tf/contract-storage/internal/repository/sqlite"
)

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	logger = logger.With().Str("component", "database").Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &repository.CreateRepositoriesResult{
			Repos:    postgres.NewRepositories(db),
			Database: db,
		}, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.ConfigFromDatabase(cfg), logger)
		if err != nil {
			return nil, err
		}
		return &repository.CreateRepositoriesResult{
			Repos:    sqlite.NewRepositories(db),
			Database: db,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedDriver, cfg.Driver)
	}
}
