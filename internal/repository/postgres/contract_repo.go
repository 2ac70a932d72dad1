package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// contractRepository implements repository.ContractRepository.
type contractRepository struct {
	db *DB
}

// NewContractRepository creates a new PostgreSQL contract repository.
func NewContractRepository(db *DB) repository.ContractRepository {
	return &contractRepository{db: db}
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc domain.Document
		url *string
	)
	if err := row.Scan(&doc.ContractID, &doc.OrganizationID, &url, &doc.Size, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if url != nil {
		doc.URL = *url
	}
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// GetDocument retrieves a contract's document.
func (r *contractRepository) GetDocument(ctx context.Context, contractID string) (*domain.Document, error) {
	query := `
		SELECT id, organization_id, pdf_url, pdf_size, updated_at
		FROM contracts
		WHERE id = $1
	`

	doc, err := scanDocument(r.db.Pool.QueryRow(ctx, query, contractID))
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
		WHERE organization_id = $1 AND pdf_url IS NOT NULL AND pdf_url <> ''
		ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query, organizationID)
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
	query := `UPDATE contracts SET pdf_url = $1, pdf_size = $2, updated_at = $3 WHERE id = $4`

	tag, err := r.db.Pool.Exec(ctx, query, url, size, time.Now().UTC(), contractID)
	if err != nil {
		return fmt.Errorf("failed to update contract location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// organizationRepository implements repository.OrganizationRepository.
type organizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new PostgreSQL organization repository.
func NewOrganizationRepository(db *DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

// ListActive returns active organizations ordered by id.
func (r *organizationRepository) ListActive(ctx context.Context) ([]*domain.Organization, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, is_active FROM organizations WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}
