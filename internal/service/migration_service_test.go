package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
)

func TestMigrationService_MigrateDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	doc := env.seedDocument(t, testOrg, "doc-1", pdfHeader)

	result := env.migration.MigrateDocument(ctx, MigrateInput{
		DocumentID:     "doc-1",
		OrganizationID: testOrg,
		From:           "primary",
		To:             "s3",
	})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Migration)
	assert.True(t, strings.HasPrefix(result.NewURL, "memory://backup/"))
	assert.Equal(t, result.NewURL, env.contracts.url("doc-1"))

	records := env.migrations.all()
	require.Len(t, records, 1)
	m := records[0]
	assert.Equal(t, domain.MigrationCompleted, m.Status)
	assert.Equal(t, doc.URL, m.OldURL)
	require.NotNil(t, m.NewURL)
	assert.Equal(t, result.NewURL, *m.NewURL)
	require.NotNil(t, m.FileSize)
	assert.Equal(t, int64(len(pdfHeader)), *m.FileSize)
	assert.NotNil(t, m.CompletedAt)
	assert.Equal(t, 1, env.migrations.finishes[m.ID])

	// And back again, reading from the backup provider.
	back := env.migration.MigrateDocument(ctx, MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "s3", To: "primary"})
	require.True(t, back.Success, back.Error)
	assert.True(t, strings.HasPrefix(env.contracts.url("doc-1"), "memory://primary/"))
}

func TestMigrationService_Refusals(t *testing.T) {
	tests := []struct {
		name        string
		input       MigrateInput
		wantFailure Failure
		wantErr     error
	}{
		{
			name:        "same type",
			input:       MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "s3", To: "s3"},
			wantFailure: FailureInvalidRequest,
			wantErr:     domain.ErrSameStorageType,
		},
		{
			name:        "unknown destination",
			input:       MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "primary", To: "ftp"},
			wantFailure: FailureInvalidRequest,
			wantErr:     domain.ErrUnknownStorageType,
		},
		{
			name:        "unknown source",
			input:       MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "", To: "s3"},
			wantFailure: FailureInvalidRequest,
		},
		{
			name:        "other tenant",
			input:       MigrateInput{DocumentID: "doc-1", OrganizationID: otherOrg, From: "primary", To: "s3"},
			wantFailure: FailureAccessDenied,
			wantErr:     domain.ErrAccessDenied,
		},
		{
			name:        "unknown document",
			input:       MigrateInput{DocumentID: "nope", OrganizationID: testOrg, From: "primary", To: "s3"},
			wantFailure: FailureSourceNotFound,
			wantErr:     domain.ErrDocumentNotFound,
		},
		{
			name:        "missing organization",
			input:       MigrateInput{DocumentID: "doc-1", From: "primary", To: "s3"},
			wantFailure: FailureInvalidRequest,
			wantErr:     domain.ErrOrganizationRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seedDocument(t, testOrg, "doc-1", pdfHeader)

			result := env.migration.MigrateDocument(context.Background(), tt.input)
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantFailure, result.Failure)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Err, tt.wantErr)
			}
			assert.Nil(t, result.Migration)
			assert.Empty(t, env.migrations.all(), "refusals must not write a record")
		})
	}
}

func TestMigrationService_FailuresEndInFailedRecord(t *testing.T) {
	tests := []struct {
		name        string
		to          string
		setup       func(*testEnv)
		ctx         func() context.Context
		wantFailure Failure
	}{
		{
			name:        "destination not configured",
			to:          "google_drive",
			wantFailure: FailureConfigurationMissing,
		},
		{
			name: "backup disabled",
			to:   "s3",
			setup: func(e *testEnv) {
				e.configs.set(nil)
			},
			wantFailure: FailureConfigurationMissing,
		},
		{
			name: "source object missing",
			to:   "s3",
			setup: func(e *testEnv) {
				require.NoError(t, e.primaryStore(testOrg).DeleteDocument(context.Background(), "doc-1"))
			},
			wantFailure: FailureSourceNotFound,
		},
		{
			name:        "location update fails",
			to:          "s3",
			setup:       func(e *testEnv) { e.contracts.updateErr = errDatabaseDown },
			wantFailure: FailurePersistenceFailed,
		},
		{
			name: "caller canceled",
			to:   "s3",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantFailure: FailureTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			doc := env.seedDocument(t, testOrg, "doc-1", pdfHeader)
			if tt.setup != nil {
				tt.setup(env)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			result := env.migration.MigrateDocument(ctx, MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "primary", To: tt.to})
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantFailure, result.Failure)
			assert.Empty(t, result.NewURL)

			records := env.migrations.all()
			require.Len(t, records, 1)
			m := records[0]
			assert.Equal(t, domain.MigrationFailed, m.Status)
			require.NotNil(t, m.ErrorMessage)
			assert.NotEmpty(t, *m.ErrorMessage)
			assert.Nil(t, m.NewURL)
			assert.Equal(t, 1, env.migrations.finishes[m.ID], "exactly one terminal update")
			assert.Equal(t, doc.URL, env.contracts.url("doc-1"))
		})
	}
}

func TestMigrationService_FinishFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedDocument(t, testOrg, "doc-1", pdfHeader)
	env.migrations.finishErr = errDatabaseDown

	result := env.migration.MigrateDocument(context.Background(), MigrateInput{DocumentID: "doc-1", OrganizationID: testOrg, From: "primary", To: "s3"})
	assert.False(t, result.Success)
	assert.Equal(t, FailurePersistenceFailed, result.Failure)
	assert.NotEmpty(t, result.NewURL, "the copy itself succeeded")
}

func TestMigrationService_MigrateAllDocuments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		env.seedDocument(t, testOrg, id, pdfHeader+id)
	}
	require.NoError(t, env.primaryStore(testOrg).DeleteDocument(ctx, "doc-2"))

	result := env.migration.MigrateAllDocuments(ctx, MigrateAllInput{OrganizationID: testOrg, From: "primary", To: "s3"})
	assert.Equal(t, JobMigrateAll, result.Job)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "doc-2", result.Errors[0].ID)

	for _, m := range env.migrations.all() {
		assert.True(t, m.Status.IsTerminal(), "migration %s left %s", m.ContractID, m.Status)
	}

	migrations, err := env.migration.ListMigrations(ctx, testOrg, 2)
	require.NoError(t, err)
	assert.Len(t, migrations, 2)

	refused := env.migration.MigrateAllDocuments(ctx, MigrateAllInput{OrganizationID: testOrg, From: "s3", To: "s3"})
	assert.NotEmpty(t, refused.Error)
	assert.Zero(t, refused.Total)
}
