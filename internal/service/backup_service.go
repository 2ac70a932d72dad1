package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/pkg/crypto"
	"github.com/prn-tf/contract-storage/internal/repository"
	"github.com/prn-tf/contract-storage/internal/storage"
	"github.com/prn-tf/contract-storage/internal/transfer"
)

// StorageResolver hands out storage providers bound to an organization.
// It is implemented by *storage.Factory.
type StorageResolver interface {
	ResolvePrimary(ctx context.Context, organizationID string) (storage.Service, error)

	// ResolveBackup returns nil, nil when backup is disabled.
	ResolveBackup(ctx context.Context, organizationID string) (storage.Service, error)

	Resolve(ctx context.Context, organizationID string, storageType domain.StorageType) (storage.Service, error)
	ActiveStorageType(ctx context.Context, organizationID string) (domain.StorageType, error)
}

// TransferConfig bounds document transfers.
type TransferConfig struct {
	// Timeout bounds each fetch and each upload.
	Timeout time.Duration
}

// BackupService creates and restores document backups.
type BackupService struct {
	contracts repository.ContractRepository
	backups   repository.BackupRepository
	storage   StorageResolver
	fetcher   transfer.Fetcher
	batch     *BatchRunner
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	config    TransferConfig
}

// NewBackupService creates a new BackupService.
func NewBackupService(
	contracts repository.ContractRepository,
	backups repository.BackupRepository,
	resolver StorageResolver,
	fetcher transfer.Fetcher,
	batch *BatchRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config TransferConfig,
) *BackupService {
	return &BackupService{
		contracts: contracts,
		backups:   backups,
		storage:   resolver,
		fetcher:   fetcher,
		batch:     batch,
		metrics:   m,
		logger:    logger.With().Str("service", "backup").Logger(),
		config:    config,
	}
}

// CreateBackupInput contains the data needed to back up a document.
type CreateBackupInput struct {
	DocumentID     string
	OrganizationID string
	Kind           domain.BackupKind

	// VersionNumber is required for version backups and forbidden otherwise.
	VersionNumber *int
}

// CreateBackup copies the canonical copy of a document to the backup provider
// and records it. Failures are reported in the result, never returned.
func (s *BackupService) CreateBackup(ctx context.Context, input CreateBackupInput) BackupResult {
	var result BackupResult
	err := s.createBackup(ctx, input, &result)
	if err != nil {
		result.fail(err)
		s.logger.Warn().
			Err(err).
			Str("document_id", input.DocumentID).
			Str("organization_id", input.OrganizationID).
			Str("kind", string(input.Kind)).
			Str("failure", string(result.Failure)).
			Msg("Backup failed")
	} else {
		result.Success = true
		s.logger.Info().
			Str("document_id", input.DocumentID).
			Str("backup_id", result.Backup.ID.String()).
			Str("storage_type", string(result.Backup.StorageType)).
			Int64("size", result.Backup.FileSize).
			Msg("Backup created")
	}
	s.metrics.RecordBackup(string(input.Kind), result.Success)
	return result
}

func (s *BackupService) createBackup(ctx context.Context, input CreateBackupInput, result *BackupResult) error {
	if input.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	if input.OrganizationID == "" {
		return domain.ErrOrganizationRequired
	}
	if !input.Kind.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidBackupKind, input.Kind)
	}
	isVersion := input.Kind == domain.BackupKindVersion
	if isVersion && (input.VersionNumber == nil || *input.VersionNumber < 1) {
		return fmt.Errorf("%w: version backups require a number >= 1", domain.ErrInvalidVersionNumber)
	}
	if !isVersion && input.VersionNumber != nil {
		return fmt.Errorf("%w: only version backups carry a number", domain.ErrInvalidVersionNumber)
	}

	target, err := s.storage.ResolveBackup(ctx, input.OrganizationID)
	if err != nil {
		return persistenceError(err)
	}
	if target == nil {
		return fmt.Errorf("%w: backup storage is not configured", domain.ErrConfigurationMissing)
	}

	doc, err := loadDocument(ctx, s.contracts, input.DocumentID, input.OrganizationID)
	if err != nil {
		return err
	}

	primary, err := s.storage.ResolvePrimary(ctx, input.OrganizationID)
	if err != nil {
		return err
	}

	tctx, cancel := transfer.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data, err := transfer.Fetch(tctx, s.fetcher, doc.URL, primary, target)
	if err != nil {
		return err
	}
	checksum := crypto.ComputeSHA256(data)

	url, err := target.UploadDocument(tctx, data, doc.ContractID, domain.BackupObjectLabel(input.Kind, input.VersionNumber))
	if err != nil {
		return transfer.Classify(err)
	}
	result.BackupURL = url

	backup, err := domain.NewBackup(doc.ContractID, target.Type(), url, input.Kind, input.VersionNumber, int64(len(data)), checksum)
	if err != nil {
		return err
	}
	backup.OrganizationID = doc.OrganizationID

	if err := s.backups.Create(ctx, backup); err != nil {
		return fmt.Errorf("%w: failed to record backup: %w", domain.ErrPersistenceFailed, err)
	}
	result.Backup = backup
	return nil
}

// CreateDailyBackup backs up every located document of the organization.
func (s *BackupService) CreateDailyBackup(ctx context.Context, organizationID string) BatchResult {
	list := func(ctx context.Context) ([]string, error) {
		return locatedDocuments(ctx, s.contracts, organizationID)
	}
	item := func(ctx context.Context, id string) error {
		r := s.CreateBackup(ctx, CreateBackupInput{
			DocumentID:     id,
			OrganizationID: organizationID,
			Kind:           domain.BackupKindDaily,
		})
		return r.Err
	}
	return s.batch.run(ctx, JobDailyBackup, lock.Keys.DailyBackup(organizationID), list, item)
}

// RestoreBackup writes the bytes of a backup to primary storage and makes
// that copy the document's canonical location.
func (s *BackupService) RestoreBackup(ctx context.Context, backupID uuid.UUID, organizationID string) RestoreResult {
	return s.restoreWith(ctx, backupID, organizationID, nil)
}

// restoreWith restores a backup after check accepts it. A nil check accepts
// every backup.
func (s *BackupService) restoreWith(ctx context.Context, backupID uuid.UUID, organizationID string, check func(*domain.Backup) error) RestoreResult {
	result := RestoreResult{BackupID: backupID}

	backup, err := s.getBackup(ctx, backupID, organizationID)
	if err == nil {
		result.DocumentID = backup.ContractID
		if check != nil {
			err = check(backup)
		}
	}
	if err == nil {
		err = s.restoreBackup(ctx, backup, &result)
	}

	if err != nil {
		result.fail(err)
		s.logger.Warn().
			Err(err).
			Str("backup_id", backupID.String()).
			Str("organization_id", organizationID).
			Str("failure", string(result.Failure)).
			Msg("Restore failed")
	} else {
		result.Success = true
		s.logger.Info().
			Str("backup_id", backupID.String()).
			Str("document_id", result.DocumentID).
			Str("restored_url", result.RestoredURL).
			Msg("Backup restored")
	}
	s.metrics.RecordRestore(result.Success)
	return result
}

// getBackup loads a backup and enforces tenant ownership.
func (s *BackupService) getBackup(ctx context.Context, backupID uuid.UUID, organizationID string) (*domain.Backup, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	backup, err := s.backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if backup.OrganizationID != organizationID {
		return nil, domain.NewDomainError(domain.ErrAccessDenied, "backup belongs to another organization", backupID.String())
	}
	return backup, nil
}

func (s *BackupService) restoreBackup(ctx context.Context, backup *domain.Backup, result *RestoreResult) error {
	primary, err := s.storage.ResolvePrimary(ctx, backup.OrganizationID)
	if err != nil {
		return err
	}

	sources := []storage.Service{primary}
	if source, err := s.storage.Resolve(ctx, backup.OrganizationID, backup.StorageType); err == nil {
		sources = append([]storage.Service{source}, sources...)
	} else {
		s.logger.Debug().
			Err(err).
			Str("backup_id", backup.ID.String()).
			Str("storage_type", string(backup.StorageType)).
			Msg("Backup provider unavailable, reading by url")
	}

	tctx, cancel := transfer.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data, err := transfer.Fetch(tctx, s.fetcher, backup.BackupURL, sources...)
	if err != nil {
		return err
	}
	if !crypto.VerifySHA256(data, backup.Checksum) {
		return domain.NewDomainError(domain.ErrChecksumMismatch, "restored bytes differ from the recorded checksum", backup.ID.String())
	}

	url, err := primary.UploadDocument(tctx, data, backup.ContractID, "restored")
	if err != nil {
		return transfer.Classify(err)
	}
	result.RestoredURL = url
	result.FileSize = int64(len(data))

	if err := s.contracts.UpdateLocation(ctx, backup.ContractID, url, int64(len(data))); err != nil {
		return fmt.Errorf("%w: failed to update document location: %w", domain.ErrPersistenceFailed, err)
	}
	return nil
}

// loadDocument fetches a document and checks tenant ownership and location.
func loadDocument(ctx context.Context, contracts repository.ContractRepository, documentID, organizationID string) (*domain.Document, error) {
	doc, err := contracts.GetDocument(ctx, documentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if !doc.BelongsTo(organizationID) {
		return nil, domain.NewDomainError(domain.ErrAccessDenied, "document belongs to another organization", documentID)
	}
	if !doc.HasLocation() {
		return nil, domain.NewDomainError(domain.ErrDocumentHasNoLocation, "nothing to copy", documentID)
	}
	return doc, nil
}

// locatedDocuments lists the ids of the organization's documents that have a
// canonical URL.
func locatedDocuments(ctx context.Context, contracts repository.ContractRepository, organizationID string) ([]string, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	docs, err := contracts.ListDocuments(ctx, organizationID)
	if err != nil {
		return nil, persistenceError(err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ContractID)
	}
	return ids, nil
}

// persistenceError keeps not-found and config sentinels intact and marks any
// other record store failure as a persistence failure.
func persistenceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrMigrationNotFound),
		errors.Is(err, domain.ErrUsageNotFound),
		errors.Is(err, domain.ErrBillingNotFound),
		errors.Is(err, domain.ErrStorageConfigNotFound),
		errors.Is(err, domain.ErrPriceNotConfigured),
		errors.Is(err, domain.ErrConfigurationMissing),
		errors.Is(err, domain.ErrOrganizationRequired):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
}
