package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/repository"
)

// BillingService turns usage into billing records.
type BillingService struct {
	organizations repository.OrganizationRepository
	usage         repository.UsageRepository
	billing       repository.BillingRepository
	pricing       repository.PricingRepository
	usageService  *UsageService
	batch         *BatchRunner
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

// NewBillingService creates a new BillingService.
func NewBillingService(
	organizations repository.OrganizationRepository,
	usage repository.UsageRepository,
	billing repository.BillingRepository,
	pricing repository.PricingRepository,
	usageService *UsageService,
	batch *BatchRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *BillingService {
	return &BillingService{
		organizations: organizations,
		usage:         usage,
		billing:       billing,
		pricing:       pricing,
		usageService:  usageService,
		batch:         batch,
		metrics:       m,
		logger:        logger.With().Str("service", "billing").Logger(),
		now:           time.Now,
	}
}

// CalculateBilling prices the organization's usage in [start, end) and
// upserts the billing record for that window. The newest usage snapshot
// overlapping the window is priced; usage is computed first when there is none.
func (s *BillingService) CalculateBilling(ctx context.Context, organizationID string, start, end time.Time) (*domain.BillingRecord, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	if err := domain.ValidateWindow(start, end); err != nil {
		return nil, err
	}

	usage, err := s.usage.GetLatestInPeriod(ctx, organizationID, start, end)
	switch {
	case errors.Is(err, domain.ErrUsageNotFound):
		usage, err = s.usageService.UpdateUsage(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		if !usage.Overlaps(start, end) {
			return nil, domain.NewDomainError(domain.ErrUsageNotFound, "no usage recorded in period", organizationID)
		}
	case err != nil:
		return nil, persistenceError(err)
	}

	price, err := s.pricing.GetActive(ctx, usage.StorageType)
	if err != nil {
		return nil, persistenceError(err)
	}

	record, err := domain.NewBillingRecord(usage, price, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.billing.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: failed to save billing: %w", domain.ErrPersistenceFailed, err)
	}

	s.metrics.SetBillingCost(organizationID, string(record.StorageType), record.TotalCost)
	s.logger.Debug().
		Str("organization_id", organizationID).
		Str("storage_type", string(record.StorageType)).
		Float64("total_gb", record.TotalGB).
		Float64("total_cost", record.TotalCost).
		Time("period_start", start).
		Msg("Billing calculated")

	return record, nil
}

// CalculateAllBillings bills the current calendar month of every active organization.
func (s *BillingService) CalculateAllBillings(ctx context.Context) BatchResult {
	start, end := domain.CurrentMonth(s.now())
	item := func(ctx context.Context, id string) error {
		_, err := s.CalculateBilling(ctx, id, start, end)
		return err
	}
	return s.batch.run(ctx, JobBillingAll, lock.Keys.BillingAll(), activeOrganizations(s.organizations), item)
}

// ListBillings returns the organization's billing records, newest period first.
func (s *BillingService) ListBillings(ctx context.Context, organizationID string, limit int) ([]*domain.BillingRecord, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	records, err := s.billing.ListByOrganization(ctx, organizationID, repository.ClampLimit(limit))
	if err != nil {
		return nil, persistenceError(err)
	}
	return records, nil
}
