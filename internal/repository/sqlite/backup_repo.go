package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// backupRepository implements repository.BackupRepository.
type backupRepository struct {
	db *DB
}

// NewBackupRepository creates a new SQLite backup repository.
func NewBackupRepository(db *DB) repository.BackupRepository {
	return &backupRepository{db: db}
}

const backupColumns = `
	b.id, b.contract_id, COALESCE(c.organization_id, ''), b.storage_type, b.backup_url,
	b.backup_type, b.version_number, b.file_size, b.checksum, b.created_at`

func scanBackup(s scanner) (*domain.Backup, error) {
	var (
		b         domain.Backup
		id        string
		version   sql.NullInt64
		createdAt string
	)
	err := s.Scan(&id, &b.ContractID, &b.OrganizationID, &b.StorageType, &b.BackupURL,
		&b.Kind, &version, &b.FileSize, &b.Checksum, &createdAt)
	if err != nil {
		return nil, err
	}

	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid backup id %q: %w", id, err)
	}
	if version.Valid {
		v := int(version.Int64)
		b.VersionNumber = &v
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a backup record.
func (r *backupRepository) Create(ctx context.Context, b *domain.Backup) error {
	query := `
		INSERT INTO contract_backups (id, contract_id, storage_type, backup_url, backup_type, version_number, file_size, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var version any
	if b.VersionNumber != nil {
		version = *b.VersionNumber
	}

	_, err := r.db.ExecContext(ctx, query,
		b.ID.String(), b.ContractID, string(b.StorageType), b.BackupURL, string(b.Kind),
		version, b.FileSize, b.Checksum, formatTime(b.CreatedAt),
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
		WHERE b.id = ?
	`

	b, err := scanBackup(r.db.QueryRowContext(ctx, query, id.String()))
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
		WHERE b.contract_id = ?
		ORDER BY b.created_at DESC, b.id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, contractID, repository.ClampLimit(limit))
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

// NextVersionNumber bumps the contract's version sequence. The new value is
// one past both the stored sequence and any version already recorded.
func (r *backupRepository) NextVersionNumber(ctx context.Context, contractID string) (int, error) {
	query := `
		INSERT INTO contract_version_sequences (contract_id, last_version)
		VALUES (?, (
			SELECT COALESCE(MAX(version_number), 0) + 1
			FROM contract_backups
			WHERE contract_id = ? AND backup_type = 'version'
		))
		ON CONFLICT (contract_id) DO UPDATE
		SET last_version = MAX(contract_version_sequences.last_version, excluded.last_version - 1) + 1
		RETURNING last_version
	`

	var next int
	if err := r.db.QueryRowContext(ctx, query, contractID, contractID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to reserve version number: %w", err)
	}
	return next, nil
}
