package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// storageConfigRepository implements repository.StorageConfigRepository.
type storageConfigRepository struct {
	db *DB
}

// NewStorageConfigRepository creates a new SQLite storage config repository.
func NewStorageConfigRepository(db *DB) repository.StorageConfigRepository {
	return &storageConfigRepository{db: db}
}

// GetActive returns the organization row, or the global row when the
// organization has none. An inactive organization row still shadows the
// global one.
func (r *storageConfigRepository) GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error) {
	query := `
		SELECT id, organization_id, storage_type, backup_storage_type, backup_config,
		       backup_is_active, is_active, updated_at
		FROM contract_storage_config
		WHERE organization_id = ? OR organization_id IS NULL
		ORDER BY organization_id IS NULL
		LIMIT 1
	`

	var (
		cfg          domain.StorageConfig
		id           string
		orgID        sql.NullString
		backupType   sql.NullString
		backupConfig string
		backupActive int
		active       int
		updatedAt    string
	)
	err := r.db.QueryRowContext(ctx, query, organizationID).Scan(
		&id, &orgID, &cfg.StorageType, &backupType, &backupConfig,
		&backupActive, &active, &updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrStorageConfigNotFound
		}
		return nil, fmt.Errorf("failed to get storage config: %w", err)
	}

	if cfg.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid storage config id %q: %w", id, err)
	}
	if orgID.Valid {
		cfg.OrganizationID = &orgID.String
	}
	cfg.BackupStorageType = backupType.String
	if err := json.Unmarshal([]byte(backupConfig), &cfg.BackupConfig); err != nil {
		return nil, fmt.Errorf("failed to decode backup config: %w", err)
	}
	cfg.BackupIsActive = backupActive == 1
	cfg.IsActive = active == 1
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save replaces the config row for cfg.OrganizationID, inserting one if needed.
func (r *storageConfigRepository) Save(ctx context.Context, cfg *domain.StorageConfig) error {
	creds := cfg.BackupConfig
	if creds == nil {
		creds = map[string]string{}
	}
	encoded, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode backup config: %w", err)
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = domain.StorageTypePrimary
	}
	var backupType any
	if cfg.BackupStorageType != "" {
		backupType = cfg.BackupStorageType
	}
	cfg.UpdatedAt = time.Now().UTC()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE contract_storage_config
			SET storage_type = ?, backup_storage_type = ?, backup_config = ?,
			    backup_is_active = ?, is_active = ?, updated_at = ?
			WHERE organization_id IS ?
		`, string(storageType), backupType, string(encoded),
			boolToInt(cfg.BackupIsActive), boolToInt(cfg.IsActive), formatTime(cfg.UpdatedAt),
			nullString(cfg.OrganizationID),
		)
		if err != nil {
			return fmt.Errorf("failed to update storage config: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO contract_storage_config
				(id, organization_id, storage_type, backup_storage_type, backup_config, backup_is_active, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, cfg.ID.String(), nullString(cfg.OrganizationID), string(storageType), backupType, string(encoded),
			boolToInt(cfg.BackupIsActive), boolToInt(cfg.IsActive), formatTime(cfg.UpdatedAt),
		)
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

// NewPricingRepository creates a new SQLite pricing repository.
func NewPricingRepository(db *DB) repository.PricingRepository {
	return &pricingRepository{db: db}
}

// GetActive returns the active price for a storage type.
func (r *pricingRepository) GetActive(ctx context.Context, storageType domain.StorageType) (*domain.Pricing, error) {
	query := `
		SELECT id, storage_type, price_per_gb, is_active
		FROM contract_storage_pricing
		WHERE storage_type = ? AND is_active = 1
	`

	var (
		p      domain.Pricing
		id     string
		active int
	)
	err := r.db.QueryRowContext(ctx, query, string(storageType)).Scan(&id, &p.StorageType, &p.PricePerGB, &active)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrPriceNotConfigured, "no active price", string(storageType))
		}
		return nil, fmt.Errorf("failed to get pricing: %w", err)
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid pricing id %q: %w", id, err)
	}
	p.IsActive = active == 1
	return &p, nil
}

// Save deactivates any previous price for the type and stores p as active.
func (r *pricingRepository) Save(ctx context.Context, p *domain.Pricing) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.IsActive = true

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE contract_storage_pricing SET is_active = 0 WHERE storage_type = ? AND is_active = 1`,
			string(p.StorageType),
		); err != nil {
			return fmt.Errorf("failed to deactivate pricing: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contract_storage_pricing (id, storage_type, price_per_gb, is_active, updated_at)
			VALUES (?, ?, ?, 1, ?)
		`, p.ID.String(), string(p.StorageType), p.PricePerGB, formatTime(time.Now())); err != nil {
			return fmt.Errorf("failed to insert pricing: %w", err)
		}
		return nil
	})
}
