// Package domain contains the core business entities for contract document storage.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations and the transfer
// failure taxonomy. They are distinct from infrastructure errors
// (database driver, network stack, etc.), which are wrapped around them.

var (
	// ===========================================
	// Configuration Errors
	// ===========================================

	// ErrConfigurationMissing indicates no usable provider is configured for the operation.
	ErrConfigurationMissing = errors.New("storage configuration missing")

	// ErrUnknownStorageType indicates a storage type outside the supported set.
	ErrUnknownStorageType = fmt.Errorf("%w: unknown storage type", ErrConfigurationMissing)

	// ErrIncompleteCredentials indicates the backup configuration lacks required credentials.
	ErrIncompleteCredentials = fmt.Errorf("%w: incomplete credentials", ErrConfigurationMissing)

	// ErrStorageConfigNotFound indicates no active storage configuration row exists.
	ErrStorageConfigNotFound = errors.New("storage config not found")

	// ===========================================
	// Transfer Errors
	// ===========================================

	// ErrSourceNotFound indicates the document, backup, or provider object is absent.
	ErrSourceNotFound = errors.New("source not found")

	// ErrTransferFailed indicates a network or provider error while moving bytes.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrChecksumMismatch indicates restored bytes do not match the recorded checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPersistenceFailed indicates a metadata write failed after the bytes were transferred.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrDocumentTooLarge indicates the fetched document exceeds the configured limit.
	ErrDocumentTooLarge = fmt.Errorf("%w: document exceeds maximum size", ErrTransferFailed)

	// ===========================================
	// Access Errors
	// ===========================================

	// ErrAccessDenied indicates the resource belongs to a different organization.
	ErrAccessDenied = errors.New("access denied")

	// ===========================================
	// Document Errors
	// ===========================================

	// ErrDocumentNotFound indicates the contract record does not exist.
	ErrDocumentNotFound = fmt.Errorf("%w: document not found", ErrSourceNotFound)

	// ErrDocumentHasNoLocation indicates the contract has no canonical URL.
	ErrDocumentHasNoLocation = fmt.Errorf("%w: document has no canonical url", ErrSourceNotFound)

	// ===========================================
	// Backup Errors
	// ===========================================

	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = fmt.Errorf("%w: backup not found", ErrSourceNotFound)

	// ErrInvalidBackupKind indicates the backup kind is not daily, replication or version.
	ErrInvalidBackupKind = errors.New("invalid backup kind")

	// ErrInvalidVersionNumber indicates the version number does not fit the backup kind.
	ErrInvalidVersionNumber = errors.New("invalid version number")

	// ErrNotAVersion indicates a non-version backup was used where a version was required.
	ErrNotAVersion = errors.New("backup is not a version")

	// ===========================================
	// Migration Errors
	// ===========================================

	// ErrMigrationNotFound indicates the requested migration does not exist.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrInvalidMigrationTransition indicates a terminal migration was updated again.
	ErrInvalidMigrationTransition = errors.New("migration is already terminal")

	// ErrSameStorageType indicates a migration between identical storage types.
	ErrSameStorageType = errors.New("source and destination storage types are identical")

	// ===========================================
	// Usage and Billing Errors
	// ===========================================

	// ErrUsageNotFound indicates no usage record exists for the requested window.
	ErrUsageNotFound = errors.New("usage record not found")

	// ErrBillingNotFound indicates no billing record exists for the requested window.
	ErrBillingNotFound = errors.New("billing record not found")

	// ErrPriceNotConfigured indicates no active price exists for the storage type.
	ErrPriceNotConfigured = errors.New("no active price configured")

	// ErrInvalidPeriod indicates a malformed period type or window.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrOrganizationRequired indicates a missing organization id.
	ErrOrganizationRequired = errors.New("organization id is required")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., contract id, backup id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
