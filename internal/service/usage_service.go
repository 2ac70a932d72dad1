package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// UsageService measures how much each organization stores.
type UsageService struct {
	organizations repository.OrganizationRepository
	usage         repository.UsageRepository
	storage       StorageResolver
	batch         *BatchRunner
	metrics       *metrics.Metrics
	logger        zerolog.Logger

	// now is the clock used for period boundaries.
	now func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(
	organizations repository.OrganizationRepository,
	usage repository.UsageRepository,
	resolver StorageResolver,
	batch *BatchRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *UsageService {
	return &UsageService{
		organizations: organizations,
		usage:         usage,
		storage:       resolver,
		batch:         batch,
		metrics:       m,
		logger:        logger.With().Str("service", "usage").Logger(),
		now:           time.Now,
	}
}

// UsageSummary is the latest usage of an organization.
type UsageSummary struct {
	OrganizationID string             `json:"organization_id"`
	StorageType    domain.StorageType `json:"storage_type"`
	TotalBytes     int64              `json:"total_bytes"`
	TotalFiles     int64              `json:"total_files"`
	TotalGB        float64            `json:"total_gb"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	PeriodType     domain.PeriodType  `json:"period_type"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func summarize(u *domain.UsageRecord) *UsageSummary {
	return &UsageSummary{
		OrganizationID: u.OrganizationID,
		StorageType:    u.StorageType,
		TotalBytes:     u.TotalBytes,
		TotalFiles:     u.TotalFiles,
		TotalGB:        u.TotalGB(),
		PeriodStart:    u.PeriodStart,
		PeriodEnd:      u.PeriodEnd,
		PeriodType:     u.PeriodType,
		UpdatedAt:      u.UpdatedAt,
	}
}

// UpdateUsage relists the organization's active provider and upserts the
// usage record of the current month.
func (s *UsageService) UpdateUsage(ctx context.Context, organizationID string) (*domain.UsageRecord, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}

	storageType, err := s.storage.ActiveStorageType(ctx, organizationID)
	if err != nil {
		return nil, persistenceError(err)
	}
	provider, err := s.storage.Resolve(ctx, organizationID, storageType)
	if err != nil {
		return nil, err
	}

	objects, err := provider.ListDocuments(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s documents: %w", domain.ErrTransferFailed, storageType, err)
	}

	var totalBytes int64
	for _, o := range objects {
		totalBytes += o.Size
	}

	record, err := domain.NewUsageRecord(organizationID, storageType, totalBytes, int64(len(objects)), domain.PeriodMonthly, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.usage.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: failed to save usage: %w", domain.ErrPersistenceFailed, err)
	}

	s.metrics.SetUsage(organizationID, string(storageType), record.TotalBytes, record.TotalFiles)
	s.logger.Debug().
		Str("organization_id", organizationID).
		Str("storage_type", string(storageType)).
		Int64("total_bytes", record.TotalBytes).
		Int64("total_files", record.TotalFiles).
		Msg("Usage updated")

	return record, nil
}

// GetUsage returns the most recently updated usage of the organization.
func (s *UsageService) GetUsage(ctx context.Context, organizationID string) (*UsageSummary, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	record, err := s.usage.GetLatest(ctx, organizationID)
	if err != nil {
		return nil, persistenceError(err)
	}
	return summarize(record), nil
}

// GetUsageHistory returns usage records, newest period first.
func (s *UsageService) GetUsageHistory(ctx context.Context, organizationID string, limit int) ([]*UsageSummary, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	records, err := s.usage.ListHistory(ctx, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, persistenceError(err)
	}
	out := make([]*UsageSummary, 0, len(records))
	for _, r := range records {
		out = append(out, summarize(r))
	}
	return out, nil
}

// UpdateAllOrganizations refreshes usage for every active organization.
func (s *UsageService) UpdateAllOrganizations(ctx context.Context) BatchResult {
	item := func(ctx context.Context, id string) error {
		_, err := s.UpdateUsage(ctx, id)
		return err
	}
	return s.batch.run(ctx, JobUsageAll, lock.Keys.UsageAll(), activeOrganizations(s.organizations), item)
}

// activeOrganizations lists the ids of every active organization.
func activeOrganizations(repo repository.OrganizationRepository) listFunc {
	return func(ctx context.Context) ([]string, error) {
		orgs, err := repo.ListActive(ctx)
		if err != nil {
			return nil, persistenceError(err)
		}
		ids := make([]string, 0, len(orgs))
		for _, o := range orgs {
			ids = append(ids, o.ID)
		}
		return ids, nil
	}
}
