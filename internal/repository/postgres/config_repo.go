package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// storageConfigRepository implements repository.StorageConfigRepository.
type storageConfigRepository struct {
	db *DB
}

// NewStorageConfigRepository creates a new PostgreSQL storage config repository.
func NewStorageConfigRepository(db *DB) repository.StorageConfigRepository {
	return &storageConfigRepository{db: db}
}

// GetActive returns the organization row, or the global row when the
// organization has none. An inactive organization row still shadows the
// global one.
func (r *storageConfigRepository) GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error) {
	query := `
		SELECT id, organization_id, storage_type, COALESCE(backup_storage_type, ''), backup_config,
		       backup_is_active, is_active, updated_at
		FROM contract_storage_config
		WHERE organization_id = $1 OR organization_id IS NULL
		ORDER BY (organization_id IS NULL)
		LIMIT 1
	`

	var cfg domain.StorageConfig
	err := r.db.Pool.QueryRow(ctx, query, organizationID).Scan(
		&cfg.ID, &cfg.OrganizationID, &cfg.StorageType, &cfg.BackupStorageType, &cfg.BackupConfig,
		&cfg.BackupIsActive, &cfg.IsActive, &cfg.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrStorageConfigNotFound
		}
		return nil, fmt.Errorf("failed to get storage config: %w", err)
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// Save replaces the config row for cfg.OrganizationID, inserting one if needed.
func (r *storageConfigRepository) Save(ctx context.Context, cfg *domain.StorageConfig) error {
	creds := cfg.BackupConfig
	if creds == nil {
		creds = map[string]string{}
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = domain.StorageTypePrimary
	}
	var backupType *string
	if cfg.BackupStorageType != "" {
		backupType = &cfg.BackupStorageType
	}
	cfg.UpdatedAt = time.Now().UTC()

	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE contract_storage_config
			SET storage_type = $1, backup_storage_type = $2, backup_config = $3,
			    backup_is_active = $4, is_active = $5, updated_at = $6
			WHERE organization_id IS NOT DISTINCT FROM $7
		`, string(storageType), backupType, creds, cfg.BackupIsActive, cfg.IsActive, cfg.UpdatedAt, cfg.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to update storage config: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contract_storage_config
				(id, organization_id, storage_type, backup_storage_type, backup_config, backup_is_active, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, cfg.ID, cfg.OrganizationID, string(storageType), backupType, creds,
			cfg.BackupIsActive, cfg.IsActive, cfg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert storage config: %w", err)
		}
		return nil
	})
}

// pricingRepository implements repository.PricingRepository.
type pricingRepository struct {
	db *DB
}

// NewPricingRepository creates a new PostgreSQL pricing repository.
func NewPricingRepository(db *DB) repository.PricingRepository {
	return &pricingRepository{db: db}
}

// GetActive returns the active price for a storage type.
func (r *pricingRepository) GetActive(ctx context.Context, storageType domain.StorageType) (*domain.Pricing, error) {
	query := `
		SELECT id, storage_type, price_per_gb, is_active
		FROM contract_storage_pricing
		WHERE storage_type = $1 AND is_active
	`

	var p domain.Pricing
	err := r.db.Pool.QueryRow(ctx, query, string(storageType)).Scan(&p.ID, &p.StorageType, &p.PricePerGB, &p.IsActive)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrPriceNotConfigured, "no active price", string(storageType))
		}
		return nil, fmt.Errorf("failed to get pricing: %w", err)
	}
	return &p, nil
}

// Save deactivates any previous price for the type and stores p as active.
func (r *pricingRepository) Save(ctx context.Context, p *domain.Pricing) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.IsActive = true

	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE contract_storage_pricing SET is_active = FALSE WHERE storage_type = $1 AND is_active`,
			string(p.StorageType),
		); err != nil {
			return fmt.Errorf("failed to deactivate pricing: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO contract_storage_pricing (id, storage_type, price_per_gb, is_active, updated_at)
			VALUES ($1, $2, $3, TRUE, $4)
		`, p.ID, string(p.StorageType), p.PricePerGB, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to insert pricing: %w", err)
		}
		return nil
	})
}
