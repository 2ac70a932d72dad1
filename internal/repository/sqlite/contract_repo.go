package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// contractRepository implements repository.ContractRepository.
type contractRepository struct {
	db *DB
}

// NewContractRepository creates a new SQLite contract repository.
func NewContractRepository(db *DB) repository.ContractRepository {
	return &contractRepository{db: db}
}

func scanDocument(s scanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		url       sql.NullString
		updatedAt string
	)
	if err := s.Scan(&doc.ContractID, &doc.OrganizationID, &url, &doc.Size, &updatedAt); err != nil {
		return nil, err
	}
	doc.URL = url.String

	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = t
	return &doc, nil
}

// GetDocument retrieves a contract's document.
func (r *contractRepository) GetDocument(ctx context.Context, contractID string) (*domain.Document, error) {
	query := `
		SELECT id, organization_id, pdf_url, pdf_size, updated_at
		FROM contracts
		WHERE id = ?
	`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, contractID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return doc, nil
}

// ListDocuments returns located contracts for an organization.
func (r *contractRepository) ListDocuments(ctx context.Context, organizationID string) ([]*domain.Document, error) {
	query := `
		SELECT id, organization_id, pdf_url, pdf_size, updated_at
		FROM contracts
		WHERE organization_id = ? AND pdf_url IS NOT NULL AND pdf_url <> ''
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}
	return docs, nil
}

// UpdateLocation replaces the canonical URL.
func (r *contractRepository) UpdateLocation(ctx context.Context, contractID, url string, size int64) error {
	query := `UPDATE contracts SET pdf_url = ?, pdf_size = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, url, size, formatTime(time.Now()), contractID)
	if err != nil {
		return fmt.Errorf("failed to update contract location: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update contract location: %w", err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// organizationRepository implements repository.OrganizationRepository.
type organizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new SQLite organization repository.
func NewOrganizationRepository(db *DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

// ListActive returns active organizations ordered by id.
func (r *organizationRepository) ListActive(ctx context.Context) ([]*domain.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, is_active FROM organizations WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*domain.Organization
	for rows.Next() {
		var (
			org    domain.Organization
			active int
		)
		if err := rows.Scan(&org.ID, &org.Name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.IsActive = active == 1
		orgs = append(orgs, &org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}
