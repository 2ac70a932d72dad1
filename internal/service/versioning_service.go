package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// VersioningService keeps numbered versions of a document as version backups.
type VersioningService struct {
	contracts repository.ContractRepository
	backups   repository.BackupRepository
	backup    *BackupService
	logger    zerolog.Logger
}

// NewVersioningService creates a new VersioningService.
func NewVersioningService(
	contracts repository.ContractRepository,
	backups repository.BackupRepository,
	backup *BackupService,
	logger zerolog.Logger,
) *VersioningService {
	return &VersioningService{
		contracts: contracts,
		backups:   backups,
		backup:    backup,
		logger:    logger.With().Str("service", "versioning").Logger(),
	}
}

// CreateVersion stores the next numbered version of a document.
// Numbers are allocated once and never reused, even when the copy fails.
func (s *VersioningService) CreateVersion(ctx context.Context, documentID, organizationID string) BackupResult {
	if _, err := s.ownedDocument(ctx, documentID, organizationID); err != nil {
		var result BackupResult
		result.fail(err)
		return result
	}

	n, err := s.backups.NextVersionNumber(ctx, documentID)
	if err != nil {
		var result BackupResult
		result.fail(fmt.Errorf("%w: failed to allocate version number: %w", domain.ErrPersistenceFailed, err))
		s.logger.Warn().Err(err).Str("document_id", documentID).Msg("Version allocation failed")
		return result
	}

	s.logger.Debug().
		Str("document_id", documentID).
		Int("version", n).
		Msg("Allocated version number")

	return s.backup.CreateBackup(ctx, CreateBackupInput{
		DocumentID:     documentID,
		OrganizationID: organizationID,
		Kind:           domain.BackupKindVersion,
		VersionNumber:  &n,
	})
}

// RestoreVersion restores a version backup. Any other backup kind is refused.
func (s *VersioningService) RestoreVersion(ctx context.Context, backupID uuid.UUID, organizationID string) RestoreResult {
	return s.backup.restoreWith(ctx, backupID, organizationID, func(b *domain.Backup) error {
		if !b.IsVersion() {
			return domain.NewDomainError(domain.ErrNotAVersion, string(b.Kind), b.ID.String())
		}
		return nil
	})
}

// ListVersions returns the version backups of a document, newest first.
func (s *VersioningService) ListVersions(ctx context.Context, documentID, organizationID string, limit int) ([]*domain.Backup, error) {
	if _, err := s.ownedDocument(ctx, documentID, organizationID); err != nil {
		return nil, err
	}

	backups, err := s.backups.ListByContract(ctx, documentID, repository.MaxListLimit)
	if err != nil {
		return nil, persistenceError(err)
	}

	limit = repository.ClampLimit(limit)
	versions := make([]*domain.Backup, 0, len(backups))
	for _, b := range backups {
		if !b.IsVersion() {
			continue
		}
		versions = append(versions, b)
		if len(versions) == limit {
			break
		}
	}
	return versions, nil
}

// ownedDocument loads a document and checks that organizationID owns it.
// A missing canonical URL is not an error here.
func (s *VersioningService) ownedDocument(ctx context.Context, documentID, organizationID string) (*domain.Document, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	doc, err := s.contracts.GetDocument(ctx, documentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if !doc.BelongsTo(organizationID) {
		return nil, domain.NewDomainError(domain.ErrAccessDenied, "document belongs to another organization", documentID)
	}
	return doc, nil
}
