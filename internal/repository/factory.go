package repository

import "context"

// Repositories holds all repository instances.
type Repositories struct {
	Contracts     ContractRepository
	Organizations OrganizationRepository
	Backups       BackupRepository
	Migrations    MigrationRepository
	Usage         UsageRepository
	Billing       BillingRepository
	StorageConfig StorageConfigRepository
	Pricing       PricingRepository
}

// DatabaseHealth is implemented by both database handles and backs the
// health endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Migrator applies the embedded schema.
type Migrator interface {
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

// Database is a DatabaseHealth that can also migrate itself.
type Database interface {
	DatabaseHealth
	Migrator
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database Database
}
