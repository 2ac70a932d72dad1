package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// migrationRepository implements repository.MigrationRepository.
type migrationRepository struct {
	db *DB
}

// NewMigrationRepository creates a new PostgreSQL migration repository.
func NewMigrationRepository(db *DB) repository.MigrationRepository {
	return &migrationRepository{db: db}
}

const migrationColumns = `
	m.id, m.contract_id, m.from_storage, m.to_storage, m.status, m.old_url,
	m.new_url, m.file_size, m.error_message, m.created_at, m.completed_at`

func scanMigration(row pgx.Row) (*domain.Migration, error) {
	var m domain.Migration
	err := row.Scan(&m.ID, &m.ContractID, &m.FromStorage, &m.ToStorage, &m.Status, &m.OldURL,
		&m.NewURL, &m.FileSize, &m.ErrorMessage, &m.CreatedAt, &m.CompletedAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if m.CompletedAt != nil {
		t := m.CompletedAt.UTC()
		m.CompletedAt = &t
	}
	return &m, nil
}

// Create inserts a migration record.
func (r *migrationRepository) Create(ctx context.Context, m *domain.Migration) error {
	query := `
		INSERT INTO contract_storage_migrations
			(id, contract_id, from_storage, to_storage, status, old_url, new_url, file_size, error_message, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		m.ID, m.ContractID, string(m.FromStorage), string(m.ToStorage), string(m.Status), m.OldURL,
		m.NewURL, m.FileSize, m.ErrorMessage, m.CreatedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}
	return nil
}

// GetByID retrieves a migration by ID.
func (r *migrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Migration, error) {
	query := `SELECT` + migrationColumns + ` FROM contract_storage_migrations m WHERE m.id = $1`

	m, err := scanMigration(r.db.Pool.QueryRow(ctx, query, id))
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
		WHERE c.organization_id = $1
		ORDER BY m.created_at DESC, m.id
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, organizationID, repository.ClampLimit(limit))
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
		SET status = $1, new_url = $2, file_size = $3, error_message = $4, completed_at = $5
		WHERE id = $6 AND status = 'in_progress'
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		string(m.Status), m.NewURL, m.FileSize, m.ErrorMessage, m.CompletedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish migration: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, m.ID); err != nil {
		return err
	}
	return domain.NewDomainError(domain.ErrInvalidMigrationTransition, "already terminal", m.ID.String())
}
