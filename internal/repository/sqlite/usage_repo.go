package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// usageRepository implements repository.UsageRepository.
type usageRepository struct {
	db *DB
}

// NewUsageRepository creates a new SQLite usage repository.
func NewUsageRepository(db *DB) repository.UsageRepository {
	return &usageRepository{db: db}
}

const usageColumns = `
	id, organization_id, storage_type, total_bytes, total_files,
	period_start, period_end, period_type, updated_at`

func scanUsage(s scanner) (*domain.UsageRecord, error) {
	var (
		u                         domain.UsageRecord
		id, start, end, updatedAt string
	)
	err := s.Scan(&id, &u.OrganizationID, &u.StorageType, &u.TotalBytes, &u.TotalFiles,
		&start, &end, &u.PeriodType, &updatedAt)
	if err != nil {
		return nil, err
	}

	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid usage id %q: %w", id, err)
	}
	if u.PeriodStart, err = parseTime(start); err != nil {
		return nil, err
	}
	if u.PeriodEnd, err = parseTime(end); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert replaces the snapshot for the record's period. u.ID is set to the
// stored row's id.
func (r *usageRepository) Upsert(ctx context.Context, u *domain.UsageRecord) error {
	query := `
		INSERT INTO contract_storage_usage
			(id, organization_id, storage_type, total_bytes, total_files, period_start, period_end, period_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, storage_type, period_type, period_start) DO UPDATE
		SET total_bytes = excluded.total_bytes,
			total_files = excluded.total_files,
			period_end = excluded.period_end,
			updated_at = excluded.updated_at
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		u.ID.String(), u.OrganizationID, string(u.StorageType), u.TotalBytes, u.TotalFiles,
		formatTime(u.PeriodStart), formatTime(u.PeriodEnd), string(u.PeriodType), formatTime(u.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid usage id %q: %w", id, err)
	}
	return nil
}

// GetLatest returns the most recently updated snapshot.
func (r *usageRepository) GetLatest(ctx context.Context, organizationID string) (*domain.UsageRecord, error) {
	query := `SELECT` + usageColumns + `
		FROM contract_storage_usage
		WHERE organization_id = ?
		ORDER BY updated_at DESC, period_start DESC
		LIMIT 1
	`

	u, err := scanUsage(r.db.QueryRowContext(ctx, query, organizationID))
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
		WHERE organization_id = ? AND period_end > ? AND period_start < ?
		ORDER BY updated_at DESC, period_start DESC
		LIMIT 1
	`

	u, err := scanUsage(r.db.QueryRowContext(ctx, query, organizationID, formatTime(start), formatTime(end)))
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
		WHERE organization_id = ?
		ORDER BY period_start DESC, updated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, repository.ClampLimit(limit))
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

// NewBillingRepository creates a new SQLite billing repository.
func NewBillingRepository(db *DB) repository.BillingRepository {
	return &billingRepository{db: db}
}

const billingColumns = `
	id, organization_id, storage_type, period_start, period_end,
	total_gb, price_per_gb, total_cost, status, calculated_at`

func scanBilling(s scanner) (*domain.BillingRecord, error) {
	var (
		b                          domain.BillingRecord
		id, start, end, calculated string
	)
	err := s.Scan(&id, &b.OrganizationID, &b.StorageType, &start, &end,
		&b.TotalGB, &b.PricePerGB, &b.TotalCost, &b.Status, &calculated)
	if err != nil {
		return nil, err
	}

	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid billing id %q: %w", id, err)
	}
	if b.PeriodStart, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.PeriodEnd, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CalculatedAt, err = parseTime(calculated); err != nil {
		return nil, err
	}
	return &b, nil
}

// Upsert replaces the record for its window. b.ID is set to the stored row's id.
func (r *billingRepository) Upsert(ctx context.Context, b *domain.BillingRecord) error {
	query := `
		INSERT INTO contract_storage_billing
			(id, organization_id, storage_type, period_start, period_end, total_gb, price_per_gb, total_cost, status, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, storage_type, period_start, period_end) DO UPDATE
		SET total_gb = excluded.total_gb,
			price_per_gb = excluded.price_per_gb,
			total_cost = excluded.total_cost,
			status = excluded.status,
			calculated_at = excluded.calculated_at
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		b.ID.String(), b.OrganizationID, string(b.StorageType), formatTime(b.PeriodStart), formatTime(b.PeriodEnd),
		b.TotalGB, b.PricePerGB, b.TotalCost, string(b.Status), formatTime(b.CalculatedAt),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert billing: %w", err)
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid billing id %q: %w", id, err)
	}
	return nil
}

// Get returns the record for a window.
func (r *billingRepository) Get(ctx context.Context, organizationID string, storageType domain.StorageType, start, end time.Time) (*domain.BillingRecord, error) {
	query := `SELECT` + billingColumns + `
		FROM contract_storage_billing
		WHERE organization_id = ? AND storage_type = ? AND period_start = ? AND period_end = ?
	`

	b, err := scanBilling(r.db.QueryRowContext(ctx, query, organizationID, string(storageType), formatTime(start), formatTime(end)))
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
		WHERE organization_id = ?
		ORDER BY period_start DESC, calculated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, repository.ClampLimit(limit))
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
