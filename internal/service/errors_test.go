package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/storage"
	"github.com/prn-tf/contract-storage/internal/transfer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Failure
	}{
		{nil, ""},
		{domain.ErrConfigurationMissing, FailureConfigurationMissing},
		{domain.ErrIncompleteCredentials, FailureConfigurationMissing},
		{domain.ErrUnknownStorageType, FailureConfigurationMissing},
		{domain.ErrPriceNotConfigured, FailureConfigurationMissing},
		{domain.ErrDocumentNotFound, FailureSourceNotFound},
		{storage.ErrObjectNotFound, FailureSourceNotFound},
		{domain.ErrMigrationNotFound, FailureSourceNotFound},
		{domain.NewDomainError(domain.ErrBackupNotFound, "gone", "b-1"), FailureSourceNotFound},
		{domain.ErrDocumentTooLarge, FailureTransferFailed},
		{transfer.Classify(context.DeadlineExceeded), FailureTransferFailed},
		{errors.New("connection reset"), FailureTransferFailed},
		{domain.ErrChecksumMismatch, FailureChecksumMismatch},
		{fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, errors.New("disk full")), FailurePersistenceFailed},
		{fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, domain.ErrInvalidVersionNumber), FailurePersistenceFailed},
		{domain.ErrAccessDenied, FailureAccessDenied},
		{ErrInvalidRequest, FailureInvalidRequest},
		{fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrUnknownStorageType), FailureInvalidRequest},
		{domain.ErrNotAVersion, FailureInvalidRequest},
		{domain.ErrSameStorageType, FailureInvalidRequest},
		{domain.ErrInvalidPeriod, FailureInvalidRequest},
		{domain.ErrOrganizationRequired, FailureInvalidRequest},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPersistenceError(t *testing.T) {
	assert.ErrorIs(t, persistenceError(domain.ErrDocumentNotFound), domain.ErrDocumentNotFound)
	assert.NotErrorIs(t, persistenceError(domain.ErrDocumentNotFound), domain.ErrPersistenceFailed)

	err := persistenceError(errDatabaseDown)
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.ErrorIs(t, err, errDatabaseDown)
}
