package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// usageRepository implements repository.UsageRepository.
type usageRepository struct {
	db *DB
}

// NewUsageRepository creates a new PostgreSQL usage repository.
func NewUsageRepository(db *DB) repository.UsageRepository {
	return &usageRepository{db: db}
}

const usageColumns = `
	id, organization_id, storage_type, total_bytes, total_files,
	period_start, period_end, period_type, updated_at`

func scanUsage(row pgx.Row) (*domain.UsageRecord, error) {
	var u domain.UsageRecord
	err := row.Scan(&u.ID, &u.OrganizationID, &u.StorageType, &u.TotalBytes, &u.TotalFiles,
		&u.PeriodStart, &u.PeriodEnd, &u.PeriodType, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.PeriodStart = u.PeriodStart.UTC()
	u.PeriodEnd = u.PeriodEnd.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// Upsert replaces the snapshot for the record's period. u.ID is set to the
// stored row's id.
func (r *usageRepository) Upsert(ctx context.Context, u *domain.UsageRecord) error {
	query := `
		INSERT INTO contract_storage_usage
			(id, organization_id, storage_type, total_bytes, total_files, period_start, period_end, period_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, storage_type, period_type, period_start) DO UPDATE
		SET total_bytes = EXCLUDED.total_bytes,
			total_files = EXCLUDED.total_files,
			period_end = EXCLUDED.period_end,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		u.ID, u.OrganizationID, string(u.StorageType), u.TotalBytes, u.TotalFiles,
		u.PeriodStart, u.PeriodEnd, string(u.PeriodType), u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}
	return nil
}

// GetLatest returns the most recently updated snapshot.
func (r *usageRepository) GetLatest(ctx context.Context, organizationID string) (*domain.UsageRecord, error) {
	query := `SELECT` + usageColumns + `
		FROM contract_storage_usage
		WHERE organization_id = $1
		ORDER BY updated_at DESC, period_start DESC
		LIMIT 1
	`

	u, err := scanUsage(r.db.Pool.QueryRow(ctx, query, organizationID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return u, nil
}

// GetLatestInPeriod returns the newest snapshot inside [start, end].
func (r *usageRepository) GetLatestInPeriod(ctx context.Context, organizationID string, start, end time.Time) (*domain.UsageRecord, error) {
	query := `SELECT` + usageColumns + `
		FROM contract_storage_usage
		WHERE organization_id = $1 AND period_start < $3 AND period_end > $2
		ORDER BY updated_at DESC, period_start DESC
		LIMIT 1
	`

	u, err := scanUsage(r.db.Pool.QueryRow(ctx, query, organizationID, start.UTC(), end.UTC()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage in period: %w", err)
	}
	return u, nil
}

// ListHistory returns snapshots, newest period first.
func (r *usageRepository) ListHistory(ctx context.Context, organizationID string, limit int) ([]*domain.UsageRecord, error) {
	query := `SELECT` + usageColumns + `
		FROM contract_storage_usage
		WHERE organization_id = $1
		ORDER BY period_start DESC, updated_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var out []*domain.UsageRecord
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage: %w", err)
	}
	return out, nil
}

// billingRepository implements repository.BillingRepository.
type billingRepository struct {
	db *DB
}

// NewBillingRepository creates a new PostgreSQL billing repository.
func NewBillingRepository(db *DB) repository.BillingRepository {
	return &billingRepository{db: db}
}

const billingColumns = `
	id, organization_id, storage_type, period_start, period_end,
	total_gb, price_per_gb, total_cost, status, calculated_at`

func scanBilling(row pgx.Row) (*domain.BillingRecord, error) {
	var b domain.BillingRecord
	err := row.Scan(&b.ID, &b.OrganizationID, &b.StorageType, &b.PeriodStart, &b.PeriodEnd,
		&b.TotalGB, &b.PricePerGB, &b.TotalCost, &b.Status, &b.CalculatedAt)
	if err != nil {
		return nil, err
	}
	b.PeriodStart = b.PeriodStart.UTC()
	b.PeriodEnd = b.PeriodEnd.UTC()
	b.CalculatedAt = b.CalculatedAt.UTC()
	return &b, nil
}

// Upsert replaces the record for its window. b.ID is set to the stored row's id.
func (r *billingRepository) Upsert(ctx context.Context, b *domain.BillingRecord) error {
	query := `
		INSERT INTO contract_storage_billing
			(id, organization_id, storage_type, period_start, period_end, total_gb, price_per_gb, total_cost, status, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, storage_type, period_start, period_end) DO UPDATE
		SET total_gb = EXCLUDED.total_gb,
			price_per_gb = EXCLUDED.price_per_gb,
			total_cost = EXCLUDED.total_cost,
			status = EXCLUDED.status,
			calculated_at = EXCLUDED.calculated_at
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		b.ID, b.OrganizationID, string(b.StorageType), b.PeriodStart, b.PeriodEnd,
		b.TotalGB, b.PricePerGB, b.TotalCost, string(b.Status), b.CalculatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert billing: %w", err)
	}
	return nil
}

// Get returns the record for a window.
func (r *billingRepository) Get(ctx context.Context, organizationID string, storageType domain.StorageType, start, end time.Time) (*domain.BillingRecord, error) {
	query := `SELECT` + billingColumns + `
		FROM contract_storage_billing
		WHERE organization_id = $1 AND storage_type = $2 AND period_start = $3 AND period_end = $4
	`

	b, err := scanBilling(r.db.Pool.QueryRow(ctx, query, organizationID, string(storageType), start.UTC(), end.UTC()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBillingNotFound
		}
		return nil, fmt.Errorf("failed to get billing: %w", err)
	}
	return b, nil
}

// ListByOrganization returns records, newest window first.
func (r *billingRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.BillingRecord, error) {
	query := `SELECT` + billingColumns + `
		FROM contract_storage_billing
		WHERE organization_id = $1
		ORDER BY period_start DESC, calculated_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list billing: %w", err)
	}
	defer rows.Close()

	var out []*domain.BillingRecord
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate billing: %w", err)
	}
	return out, nil
}
