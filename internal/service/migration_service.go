package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/repository"
	"github.com/prn-tf/contract-storage/internal/storage"
	"github.com/prn-tf/contract-storage/internal/transfer"
)

// MigrationService moves the canonical copy of documents between providers.
type MigrationService struct {
	contracts  repository.ContractRepository
	migrations repository.MigrationRepository
	storage    StorageResolver
	fetcher    transfer.Fetcher
	batch      *BatchRunner
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	config     TransferConfig
}

// NewMigrationService creates a new MigrationService.
func NewMigrationService(
	contracts repository.ContractRepository,
	migrations repository.MigrationRepository,
	resolver StorageResolver,
	fetcher transfer.Fetcher,
	batch *BatchRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config TransferConfig,
) *MigrationService {
	return &MigrationService{
		contracts:  contracts,
		migrations: migrations,
		storage:    resolver,
		fetcher:    fetcher,
		batch:      batch,
		metrics:    m,
		logger:     logger.With().Str("service", "migration").Logger(),
		config:     config,
	}
}

// MigrateInput contains the data needed to migrate one document.
type MigrateInput struct {
	DocumentID     string
	OrganizationID string
	From           string
	To             string
}

// MigrateAllInput contains the data needed to migrate every document of an organization.
type MigrateAllInput struct {
	OrganizationID string
	From           string
	To             string
}

// MigrateDocument copies a document to the destination provider and points
// its canonical URL there. Once a record is written it always ends in exactly
// one terminal state.
func (s *MigrationService) MigrateDocument(ctx context.Context, input MigrateInput) MigrationResult {
	var result MigrationResult

	from, to, doc, err := s.validate(ctx, input)
	if err != nil {
		result.fail(err)
		s.logger.Warn().
			Err(err).
			Str("document_id", input.DocumentID).
			Str("organization_id", input.OrganizationID).
			Str("failure", string(result.Failure)).
			Msg("Migration refused")
		return result
	}

	m := domain.NewMigration(doc.ContractID, from, to, doc.URL)
	if err := s.migrations.Create(ctx, m); err != nil {
		result.fail(fmt.Errorf("%w: failed to record migration: %w", domain.ErrPersistenceFailed, err))
		return result
	}
	result.Migration = m

	logger := s.logger.With().
		Str("migration_id", m.ID.String()).
		Str("document_id", doc.ContractID).
		Str("from", string(from)).
		Str("to", string(to)).
		Logger()
	logger.Debug().Msg("Migration started")

	newURL, size, moveErr := s.move(ctx, doc, from, to)

	if moveErr == nil {
		_ = m.Complete(newURL, size)
	} else {
		_ = m.Fail(moveErr.Error())
	}
	// The terminal write must land even when the caller went away.
	finishErr := s.migrations.Finish(context.WithoutCancel(ctx), m)
	s.metrics.RecordMigration(string(m.Status))

	if finishErr != nil {
		logger.Error().Err(finishErr).Str("status", string(m.Status)).Msg("Failed to record migration outcome")
	}

	switch {
	case moveErr != nil:
		result.fail(moveErr)
		logger.Warn().Err(moveErr).Str("failure", string(result.Failure)).Msg("Migration failed")
	case finishErr != nil:
		result.NewURL = newURL
		result.fail(fmt.Errorf("%w: failed to finish migration: %w", domain.ErrPersistenceFailed, finishErr))
	default:
		result.Success = true
		result.NewURL = newURL
		logger.Info().Int64("size", size).Str("new_url", newURL).Msg("Migration completed")
	}
	return result
}

// validate checks the request and loads the document. Nothing is written.
func (s *MigrationService) validate(ctx context.Context, input MigrateInput) (domain.StorageType, domain.StorageType, *domain.Document, error) {
	if input.DocumentID == "" {
		return "", "", nil, fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	if input.OrganizationID == "" {
		return "", "", nil, domain.ErrOrganizationRequired
	}
	from, to, err := parseMigrationTypes(input.From, input.To)
	if err != nil {
		return "", "", nil, err
	}
	doc, err := loadDocument(ctx, s.contracts, input.DocumentID, input.OrganizationID)
	if err != nil {
		return "", "", nil, err
	}
	return from, to, doc, nil
}

func parseMigrationTypes(fromStr, toStr string) (domain.StorageType, domain.StorageType, error) {
	from, err := domain.ParseStorageType(fromStr)
	if err != nil {
		return "", "", fmt.Errorf("%w: from: %w", ErrInvalidRequest, err)
	}
	to, err := domain.ParseStorageType(toStr)
	if err != nil {
		return "", "", fmt.Errorf("%w: to: %w", ErrInvalidRequest, err)
	}
	if from == to {
		return "", "", domain.NewDomainError(domain.ErrSameStorageType, "nothing to migrate", string(from))
	}
	return from, to, nil
}

// move copies the canonical bytes into the destination provider and updates
// the document location.
func (s *MigrationService) move(ctx context.Context, doc *domain.Document, from, to domain.StorageType) (string, int64, error) {
	dest, err := s.storage.Resolve(ctx, doc.OrganizationID, to)
	if err != nil {
		return "", 0, err
	}

	sources := []storage.Service{dest}
	if src, err := s.storage.Resolve(ctx, doc.OrganizationID, from); err == nil {
		sources = append([]storage.Service{src}, sources...)
	}
	if to != domain.StorageTypePrimary && from != domain.StorageTypePrimary {
		if primary, err := s.storage.ResolvePrimary(ctx, doc.OrganizationID); err == nil {
			sources = append(sources, primary)
		}
	}

	tctx, cancel := transfer.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data, err := transfer.Fetch(tctx, s.fetcher, doc.URL, sources...)
	if err != nil {
		return "", 0, err
	}

	url, err := dest.UploadDocument(tctx, data, doc.ContractID, "migrated")
	if err != nil {
		return "", 0, transfer.Classify(err)
	}

	size := int64(len(data))
	if err := s.contracts.UpdateLocation(ctx, doc.ContractID, url, size); err != nil {
		return "", 0, fmt.Errorf("%w: failed to update document location: %w", domain.ErrPersistenceFailed, err)
	}
	return url, size, nil
}

// MigrateAllDocuments migrates every located document of the organization.
func (s *MigrationService) MigrateAllDocuments(ctx context.Context, input MigrateAllInput) BatchResult {
	if _, _, err := parseMigrationTypes(input.From, input.To); err != nil {
		return BatchResult{Job: JobMigrateAll, Error: err.Error()}
	}

	list := func(ctx context.Context) ([]string, error) {
		return locatedDocuments(ctx, s.contracts, input.OrganizationID)
	}
	item := func(ctx context.Context, id string) error {
		r := s.MigrateDocument(ctx, MigrateInput{
			DocumentID:     id,
			OrganizationID: input.OrganizationID,
			From:           input.From,
			To:             input.To,
		})
		return r.Err
	}
	return s.batch.run(ctx, JobMigrateAll, lock.Keys.MigrateAll(input.OrganizationID), list, item)
}

// ListMigrations returns the organization's migrations, newest first.
func (s *MigrationService) ListMigrations(ctx context.Context, organizationID string, limit int) ([]*domain.Migration, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	migrations, err := s.migrations.ListByOrganization(ctx, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, persistenceError(err)
	}
	return migrations, nil
}
