// Package service implements backup, versioning, migration, usage and billing
// operations over contract documents.
package service

import (
	"errors"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// Failure is the kind of a failed operation. The set is closed.
type Failure string

// Failure kinds.
const (
	FailureConfigurationMissing Failure = "configuration_missing"
	FailureSourceNotFound       Failure = "source_not_found"
	FailureTransferFailed       Failure = "transfer_failed"
	FailureChecksumMismatch     Failure = "checksum_mismatch"
	FailurePersistenceFailed    Failure = "persistence_failed"
	FailureAccessDenied         Failure = "access_denied"
	FailureInvalidRequest       Failure = "invalid_request"
)

// ErrInvalidRequest marks input refused before any work was attempted.
var ErrInvalidRequest = errors.New("invalid request")

// Classify maps err to its failure kind. It returns "" for a nil error.
// Errors outside the taxonomy are treated as transfer failures.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrAccessDenied):
		return FailureAccessDenied
	case errors.Is(err, domain.ErrPersistenceFailed):
		return FailurePersistenceFailed
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidBackupKind),
		errors.Is(err, domain.ErrInvalidVersionNumber),
		errors.Is(err, domain.ErrNotAVersion),
		errors.Is(err, domain.ErrSameStorageType),
		errors.Is(err, domain.ErrOrganizationRequired),
		errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidMigrationTransition):
		return FailureInvalidRequest
	case errors.Is(err, domain.ErrChecksumMismatch):
		return FailureChecksumMismatch
	case errors.Is(err, domain.ErrConfigurationMissing),
		errors.Is(err, domain.ErrStorageConfigNotFound),
		errors.Is(err, domain.ErrPriceNotConfigured):
		return FailureConfigurationMissing
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrMigrationNotFound),
		errors.Is(err, domain.ErrUsageNotFound),
		errors.Is(err, domain.ErrBillingNotFound):
		return FailureSourceNotFound
	default:
		return FailureTransferFailed
	}
}
