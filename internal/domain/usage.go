package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// BytesPerGB is the divisor used for every byte to GB conversion.
const BytesPerGB = 1024 * 1024 * 1024

// GBPrecision is the number of decimals kept when reporting GB.
const GBPrecision = 4

// UsageRecord is the aggregate storage measurement of one organization,
// storage type and period window. At most one exists per window.
type UsageRecord struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID string      `json:"organization_id"`
	StorageType    StorageType `json:"storage_type"`
	TotalBytes     int64       `json:"total_bytes"`
	TotalFiles     int64       `json:"total_files"`
	PeriodStart    time.Time   `json:"period_start"`
	PeriodEnd      time.Time   `json:"period_end"`
	PeriodType     PeriodType  `json:"period_type"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewUsageRecord builds a usage record for the window of period p containing now.
func NewUsageRecord(organizationID string, storageType StorageType, totalBytes, totalFiles int64, p PeriodType, now time.Time) (*UsageRecord, error) {
	if !storageType.IsValid() {
		return nil, NewDomainError(ErrUnknownStorageType, "usage storage type", string(storageType))
	}
	start, end, err := PeriodBounds(now, p)
	if err != nil {
		return nil, err
	}
	return &UsageRecord{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		StorageType:    storageType,
		TotalBytes:     totalBytes,
		TotalFiles:     totalFiles,
		PeriodStart:    start,
		PeriodEnd:      end,
		PeriodType:     p,
		UpdatedAt:      now.UTC(),
	}, nil
}

// TotalGB returns the usage in GB rounded to GBPrecision decimals.
func (u *UsageRecord) TotalGB() float64 {
	return BytesToGB(u.TotalBytes)
}

// Overlaps reports whether the record's window shares any instant with [start, end).
func (u *UsageRecord) Overlaps(start, end time.Time) bool {
	return u.PeriodStart.Before(end) && u.PeriodEnd.After(start)
}

// BytesToGB converts bytes to GB rounded to GBPrecision decimals.
func BytesToGB(bytes int64) float64 {
	return RoundTo(float64(bytes)/BytesPerGB, GBPrecision)
}

// RoundTo rounds v to the given number of decimals, halves away from zero.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
