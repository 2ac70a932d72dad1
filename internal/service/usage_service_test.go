package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestUsageService_UpdateUsage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.usage.now = fixedClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	env.seedDocument(t, testOrg, "doc-1", strings.Repeat("a", 1000))
	env.seedDocument(t, testOrg, "doc-2", strings.Repeat("b", 24))
	env.seedDocument(t, otherOrg, "doc-3", strings.Repeat("c", 5000))

	record, err := env.usage.UpdateUsage(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypePrimary, record.StorageType)
	assert.Equal(t, int64(1024), record.TotalBytes)
	assert.Equal(t, int64(2), record.TotalFiles)
	assert.Equal(t, domain.PeriodMonthly, record.PeriodType)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), record.PeriodStart)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), record.PeriodEnd)

	// Recomputing replaces the record of the same window.
	env.seedDocument(t, testOrg, "doc-4", "x")
	_, err = env.usage.UpdateUsage(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, env.usageRepo.records, 1)
	assert.Equal(t, int64(1025), env.usageRepo.records[0].TotalBytes)

	summary, err := env.usage.GetUsage(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalFiles)
	assert.Equal(t, 0.0, summary.TotalGB)

	// The next month gets its own record.
	env.usage.now = fixedClock(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	_, err = env.usage.UpdateUsage(ctx, testOrg)
	require.NoError(t, err)

	history, err := env.usage.GetUsageHistory(ctx, testOrg, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, time.April, history[0].PeriodStart.Month())
}

func TestUsageService_TotalGB(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.usageRepo.records = append(env.usageRepo.records, &domain.UsageRecord{
		OrganizationID: testOrg,
		StorageType:    domain.StorageTypePrimary,
		TotalBytes:     1536 * 1024 * 1024,
		TotalFiles:     3,
		PeriodType:     domain.PeriodMonthly,
		UpdatedAt:      time.Now(),
	})

	summary, err := env.usage.GetUsage(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, 1.5, summary.TotalGB)
}

func TestUsageService_SumsFileSizes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.usage.now = fixedClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	for i, size := range []int{100, 250, 650} {
		env.seedDocument(t, testOrg, fmt.Sprintf("doc-%d", i), strings.Repeat("a", size))
	}

	record, err := env.usage.UpdateUsage(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), record.TotalBytes)
	assert.Equal(t, int64(3), record.TotalFiles)
	assert.Equal(t, domain.RoundTo(1000.0/(1<<30), 4), record.TotalGB())
}

func TestUsageService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown active type", func(t *testing.T) {
		env := newTestEnv(t)
		cfg := backupEnabledConfig()
		cfg.StorageType = "nas"
		env.configs.set(cfg)

		_, err := env.usage.UpdateUsage(ctx, testOrg)
		require.ErrorIs(t, err, domain.ErrUnknownStorageType)
		assert.Equal(t, FailureConfigurationMissing, Classify(err))
		assert.Empty(t, env.usageRepo.records)
	})

	t.Run("metered backup type", func(t *testing.T) {
		env := newTestEnv(t)
		cfg := backupEnabledConfig()
		cfg.StorageType = domain.StorageTypeS3
		env.configs.set(cfg)
		_, err := env.backupStore(testOrg).UploadDocument(ctx, []byte("12345"), "doc-1", "daily")
		require.NoError(t, err)

		record, err := env.usage.UpdateUsage(ctx, testOrg)
		require.NoError(t, err)
		assert.Equal(t, domain.StorageTypeS3, record.StorageType)
		assert.Equal(t, int64(5), record.TotalBytes)
	})

	t.Run("no usage yet", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.usage.GetUsage(ctx, testOrg)
		require.ErrorIs(t, err, domain.ErrUsageNotFound)
	})

	t.Run("upsert fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.usageRepo.upsertErr = errDatabaseDown
		_, err := env.usage.UpdateUsage(ctx, testOrg)
		require.ErrorIs(t, err, domain.ErrPersistenceFailed)
	})

	t.Run("missing organization", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.usage.UpdateUsage(ctx, "")
		require.ErrorIs(t, err, domain.ErrOrganizationRequired)
	})
}

func TestUsageService_UpdateAllOrganizations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.orgs.orgs = []*domain.Organization{
		{ID: testOrg, Name: "Acme", IsActive: true},
		{ID: otherOrg, Name: "Globex", IsActive: true},
		{ID: "org-3", Name: "Dormant", IsActive: false},
	}
	env.seedDocument(t, testOrg, "doc-1", "abc")

	result := env.usage.UpdateAllOrganizations(ctx)
	assert.Equal(t, JobUsageAll, result.Job)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Success)
	assert.Len(t, env.usageRepo.records, 2)

	env.orgs.listErr = errDatabaseDown
	result = env.usage.UpdateAllOrganizations(ctx)
	assert.NotEmpty(t, result.Error)
}
