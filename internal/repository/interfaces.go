// Package repository defines the record-store interfaces behind the contract
// storage services. Implementations live in the postgres and sqlite packages.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// =============================================================================
// Contract Repository
// =============================================================================

// ContractRepository reads and updates the canonical location of contract PDFs.
type ContractRepository interface {
	// GetDocument returns the contract's document, or domain.ErrDocumentNotFound.
	GetDocument(ctx context.Context, contractID string) (*domain.Document, error)

	// ListDocuments returns the organization's contracts that have a canonical URL,
	// ordered by contract id.
	ListDocuments(ctx context.Context, organizationID string) ([]*domain.Document, error)

	// UpdateLocation replaces the canonical URL and size.
	UpdateLocation(ctx context.Context, contractID, url string, size int64) error
}

// OrganizationRepository lists tenants.
type OrganizationRepository interface {
	ListActive(ctx context.Context) ([]*domain.Organization, error)
}

// =============================================================================
// Backup Repository
// =============================================================================

// BackupRepository stores backup and version records.
type BackupRepository interface {
	Create(ctx context.Context, backup *domain.Backup) error

	// GetByID returns the backup with OrganizationID filled from its contract,
	// or domain.ErrBackupNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error)

	// ListByContract returns the contract's backups, newest first.
	ListByContract(ctx context.Context, contractID string, limit int) ([]*domain.Backup, error)

	// NextVersionNumber reserves the next version number for a contract.
	// A number is never handed out twice, even when the backup write that
	// follows fails.
	NextVersionNumber(ctx context.Context, contractID string) (int, error)
}

// =============================================================================
// Migration Repository
// =============================================================================

// MigrationRepository stores migration attempts.
type MigrationRepository interface {
	Create(ctx context.Context, m *domain.Migration) error

	// GetByID returns the migration, or domain.ErrMigrationNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Migration, error)

	// ListByOrganization returns the organization's migrations, newest first.
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.Migration, error)

	// Finish writes the terminal state of m. It only changes a row that is
	// still in_progress and returns domain.ErrInvalidMigrationTransition otherwise.
	Finish(ctx context.Context, m *domain.Migration) error
}

// =============================================================================
// Usage and Billing Repositories
// =============================================================================

// UsageRepository stores usage snapshots, one per organization, storage type
// and period.
type UsageRepository interface {
	// Upsert inserts or replaces the snapshot for the record's period.
	Upsert(ctx context.Context, u *domain.UsageRecord) error

	// GetLatest returns the most recently updated snapshot, or domain.ErrUsageNotFound.
	GetLatest(ctx context.Context, organizationID string) (*domain.UsageRecord, error)

	// GetLatestInPeriod returns the newest snapshot whose period overlaps
	// [start, end), or domain.ErrUsageNotFound.
	GetLatestInPeriod(ctx context.Context, organizationID string, start, end time.Time) (*domain.UsageRecord, error)

	// ListHistory returns snapshots newest period first.
	ListHistory(ctx context.Context, organizationID string, limit int) ([]*domain.UsageRecord, error)
}

// BillingRepository stores billing calculations.
type BillingRepository interface {
	// Upsert inserts or replaces the record for its organization, type and window.
	Upsert(ctx context.Context, b *domain.BillingRecord) error

	// Get returns the record for the window, or domain.ErrBillingNotFound.
	Get(ctx context.Context, organizationID string, storageType domain.StorageType, start, end time.Time) (*domain.BillingRecord, error)

	// ListByOrganization returns records newest window first.
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.BillingRecord, error)
}

// =============================================================================
// Configuration Repositories
// =============================================================================

// StorageConfigRepository stores per-organization and global storage settings.
type StorageConfigRepository interface {
	// GetActive returns the organization's active config, falling back to the
	// global one. It returns domain.ErrStorageConfigNotFound when neither exists.
	GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error)

	// Save inserts or replaces the config for cfg.OrganizationID (nil = global).
	Save(ctx context.Context, cfg *domain.StorageConfig) error
}

// PricingRepository stores per-GB prices.
type PricingRepository interface {
	// GetActive returns the active price, or domain.ErrPriceNotConfigured.
	GetActive(ctx context.Context, storageType domain.StorageType) (*domain.Pricing, error)

	// Save makes p the only active price for its storage type.
	Save(ctx context.Context, p *domain.Pricing) error
}
