package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// backupRepository implements repository.BackupRepository.
type backupRepository struct {
	db *DB
}

// NewBackupRepository creates a new PostgreSQL backup repository.
func NewBackupRepository(db *DB) repository.BackupRepository {
	return &backupRepository{db: db}
}

const backupColumns = `
	b.id, b.contract_id, COALESCE(c.organization_id, ''), b.storage_type, b.backup_url,
	b.backup_type, b.version_number, b.file_size, b.checksum, b.created_at`

func scanBackup(row pgx.Row) (*domain.Backup, error) {
	var (
		b       domain.Backup
		version *int32
	)
	err := row.Scan(&b.ID, &b.ContractID, &b.OrganizationID, &b.StorageType, &b.BackupURL,
		&b.Kind, &version, &b.FileSize, &b.Checksum, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if version != nil {
		v := int(*version)
		b.VersionNumber = &v
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// Create inserts a backup record.
func (r *backupRepository) Create(ctx context.Context, b *domain.Backup) error {
	query := `
		INSERT INTO contract_backups (id, contract_id, storage_type, backup_url, backup_type, version_number, file_size, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		b.ID, b.ContractID, string(b.StorageType), b.BackupURL, string(b.Kind),
		b.VersionNumber, b.FileSize, b.Checksum, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version already recorded", domain.ErrInvalidVersionNumber)
		}
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

// GetByID retrieves a backup by ID.
func (r *backupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	query := `SELECT` + backupColumns + `
		FROM contract_backups b
		LEFT JOIN contracts c ON c.id = b.contract_id
		WHERE b.id = $1
	`

	b, err := scanBackup(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBackupNotFound
		}
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return b, nil
}

// ListByContract returns a contract's backups, newest first.
func (r *backupRepository) ListByContract(ctx context.Context, contractID string, limit int) ([]*domain.Backup, error) {
	query := `SELECT` + backupColumns + `
		FROM contract_backups b
		LEFT JOIN contracts c ON c.id = b.contract_id
		WHERE b.contract_id = $1
		ORDER BY b.created_at DESC, b.id
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, contractID, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backups: %w", err)
	}
	return backups, nil
}

// NextVersionNumber bumps the contract's version sequence under the row lock
// taken by the upsert, so concurrent callers get distinct numbers.
func (r *backupRepository) NextVersionNumber(ctx context.Context, contractID string) (int, error) {
	query := `
		INSERT INTO contract_version_sequences (contract_id, last_version)
		VALUES ($1, (
			SELECT COALESCE(MAX(version_number), 0) + 1
			FROM contract_backups
			WHERE contract_id = $1 AND backup_type = 'version'
		))
		ON CONFLICT (contract_id) DO UPDATE
		SET last_version = GREATEST(contract_version_sequences.last_version, EXCLUDED.last_version - 1) + 1
		RETURNING last_version
	`

	var next int
	if err := r.db.Pool.QueryRow(ctx, query, contractID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to reserve version number: %w", err)
	}
	return next, nil
}
