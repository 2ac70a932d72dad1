package domain

import (
	"time"

	"github.com/google/uuid"
)

// CostPrecision is the number of decimals kept for monetary amounts.
const CostPrecision = 2

// BillingStatus is the lifecycle state of a billing record.
type BillingStatus string

// BillingCalculated is the only state produced here; invoicing happens elsewhere.
const BillingCalculated BillingStatus = "calculated"

// Pricing is the price per GB configured for a storage type.
type Pricing struct {
	ID          uuid.UUID   `json:"id"`
	StorageType StorageType `json:"storage_type"`
	PricePerGB  float64     `json:"price_per_gb"`
	IsActive    bool        `json:"is_active"`
}

// BillingRecord is the cost derived from a usage record.
// At most one exists per organization, storage type and window.
type BillingRecord struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID string        `json:"organization_id"`
	StorageType    StorageType   `json:"storage_type"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	TotalGB        float64       `json:"total_gb"`
	PricePerGB     float64       `json:"price_per_gb"`
	TotalCost      float64       `json:"total_cost"`
	Status         BillingStatus `json:"status"`
	CalculatedAt   time.Time     `json:"calculated_at"`
}

// NewBillingRecord derives a billing record for the window [start, end) from usage and price.
func NewBillingRecord(usage *UsageRecord, price *Pricing, start, end time.Time) (*BillingRecord, error) {
	if err := ValidateWindow(start, end); err != nil {
		return nil, err
	}
	if usage.StorageType != price.StorageType {
		return nil, NewDomainError(ErrPriceNotConfigured, "price storage type differs from usage", string(usage.StorageType))
	}

	totalGB := usage.TotalGB()
	return &BillingRecord{
		ID:             uuid.New(),
		OrganizationID: usage.OrganizationID,
		StorageType:    usage.StorageType,
		PeriodStart:    start.UTC(),
		PeriodEnd:      end.UTC(),
		TotalGB:        totalGB,
		PricePerGB:     price.PricePerGB,
		TotalCost:      RoundTo(totalGB*price.PricePerGB, CostPrecision),
		Status:         BillingCalculated,
		CalculatedAt:   time.Now().UTC(),
	}, nil
}
