package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// migrationRepository implements repository.MigrationRepository.
type migrationRepository struct {
	db *DB
}

// NewMigrationRepository creates a new SQLite migration repository.
func NewMigrationRepository(db *DB) repository.MigrationRepository {
	return &migrationRepository{db: db}
}

const migrationColumns = `
	m.id, m.contract_id, m.from_storage, m.to_storage, m.status, m.old_url,
	m.new_url, m.file_size, m.error_message, m.created_at, m.completed_at`

func scanMigration(s scanner) (*domain.Migration, error) {
	var (
		m           domain.Migration
		id          string
		newURL      sql.NullString
		size        sql.NullInt64
		errMsg      sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	err := s.Scan(&id, &m.ContractID, &m.FromStorage, &m.ToStorage, &m.Status, &m.OldURL,
		&newURL, &size, &errMsg, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid migration id %q: %w", id, err)
	}
	if newURL.Valid {
		m.NewURL = &newURL.String
	}
	if size.Valid {
		m.FileSize = &size.Int64
	}
	if errMsg.Valid {
		m.ErrorMessage = &errMsg.String
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a migration record.
func (r *migrationRepository) Create(ctx context.Context, m *domain.Migration) error {
	query := `
		INSERT INTO contract_storage_migrations
			(id, contract_id, from_storage, to_storage, status, old_url, new_url, file_size, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(), m.ContractID, string(m.FromStorage), string(m.ToStorage), string(m.Status), m.OldURL,
		nullString(m.NewURL), nullInt64(m.FileSize), nullString(m.ErrorMessage),
		formatTime(m.CreatedAt), formatNullTime(m.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}
	return nil
}

// GetByID retrieves a migration by ID.
func (r *migrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Migration, error) {
	query := `SELECT` + migrationColumns + ` FROM contract_storage_migrations m WHERE m.id = ?`

	m, err := scanMigration(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMigrationNotFound
		}
		return nil, fmt.Errorf("failed to get migration: %w", err)
	}
	return m, nil
}

// ListByOrganization returns an organization's migrations, newest first.
func (r *migrationRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.Migration, error) {
	query := `SELECT` + migrationColumns + `
		FROM contract_storage_migrations m
		JOIN contracts c ON c.id = m.contract_id
		WHERE c.organization_id = ?
		ORDER BY m.created_at DESC, m.id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migrations: %w", err)
	}
	return out, nil
}

// Finish records the terminal state of an in-progress migration.
func (r *migrationRepository) Finish(ctx context.Context, m *domain.Migration) error {
	if !m.Status.IsTerminal() {
		return fmt.Errorf("%w: finish requires a terminal status, got %s", domain.ErrInvalidMigrationTransition, m.Status)
	}

	query := `
		UPDATE contract_storage_migrations
		SET status = ?, new_url = ?, file_size = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'in_progress'
	`

	result, err := r.db.ExecContext(ctx, query,
		string(m.Status), nullString(m.NewURL), nullInt64(m.FileSize), nullString(m.ErrorMessage),
		formatNullTime(m.CompletedAt), m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish migration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish migration: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, m.ID); err != nil {
		return err
	}
	return domain.NewDomainError(domain.ErrInvalidMigrationTransition, "already terminal", m.ID.String())
}
