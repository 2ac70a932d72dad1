package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageType(t *testing.T) {
	tests := []struct {
		in      string
		want    StorageType
		wantErr bool
	}{
		{in: "primary", want: StorageTypePrimary},
		{in: "s3", want: StorageTypeS3},
		{in: " Firebase ", want: StorageTypeFirebase},
		{in: "google_drive", want: StorageTypeGoogleDrive},
		{in: "azure_blob", want: StorageTypeAzureBlob},
		{in: "dropbox", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStorageType(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownStorageType)
				require.ErrorIs(t, err, ErrConfigurationMissing)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	assert.False(t, StorageTypePrimary.IsBackupType())
	assert.True(t, StorageTypeS3.IsBackupType())
	assert.False(t, StorageType("ftp").IsBackupType())
}

func TestNewBackup_KindVersionConsistency(t *testing.T) {
	v := 3
	zero := 0

	b, err := NewBackup("c1", StorageTypeS3, "https://x/y", BackupKindVersion, &v, 10, "abc")
	require.NoError(t, err)
	require.True(t, b.IsVersion())
	require.Equal(t, "version-v3", BackupObjectLabel(b.Kind, b.VersionNumber))

	_, err = NewBackup("c1", StorageTypeS3, "u", BackupKindVersion, nil, 10, "abc")
	require.ErrorIs(t, err, ErrInvalidVersionNumber)

	_, err = NewBackup("c1", StorageTypeS3, "u", BackupKindVersion, &zero, 10, "abc")
	require.ErrorIs(t, err, ErrInvalidVersionNumber)

	_, err = NewBackup("c1", StorageTypeS3, "u", BackupKindDaily, &v, 10, "abc")
	require.ErrorIs(t, err, ErrInvalidVersionNumber)

	_, err = NewBackup("c1", StorageType("tape"), "u", BackupKindDaily, nil, 10, "abc")
	require.ErrorIs(t, err, ErrUnknownStorageType)

	_, err = NewBackup("c1", StorageTypeS3, "u", BackupKind("weekly"), nil, 10, "abc")
	require.ErrorIs(t, err, ErrInvalidBackupKind)
}

func TestMigration_StateMachine(t *testing.T) {
	t.Run("complete once", func(t *testing.T) {
		m := NewMigration("c1", StorageTypePrimary, StorageTypeS3, "old")
		require.Equal(t, MigrationInProgress, m.Status)

		require.NoError(t, m.Complete("new", 42))
		require.Equal(t, MigrationCompleted, m.Status)
		require.Equal(t, "new", *m.NewURL)
		require.Equal(t, int64(42), *m.FileSize)
		require.NotNil(t, m.CompletedAt)

		require.ErrorIs(t, m.Fail("late"), ErrInvalidMigrationTransition)
		require.ErrorIs(t, m.Complete("again", 1), ErrInvalidMigrationTransition)
		require.Nil(t, m.ErrorMessage)
	})

	t.Run("fail once", func(t *testing.T) {
		m := NewMigration("c1", StorageTypePrimary, StorageTypeS3, "old")
		require.NoError(t, m.Fail(""))
		require.Equal(t, MigrationFailed, m.Status)
		require.Equal(t, "unknown error", *m.ErrorMessage)
		require.ErrorIs(t, m.Complete("new", 1), ErrInvalidMigrationTransition)
	})
}

func TestPeriodBounds(t *testing.T) {
	// Wednesday
	now := time.Date(2026, time.February, 18, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		period    PeriodType
		wantStart time.Time
		wantEnd   time.Time
	}{
		{PeriodDaily, time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)},
		{PeriodMonthly, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYearly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			start, end, err := PeriodBounds(now, tt.period)
			require.NoError(t, err)
			require.Equal(t, tt.wantStart, start)
			require.Equal(t, tt.wantEnd, end)
		})
	}

	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, time.February, 22, 23, 0, 0, 0, time.UTC)
	start, _, err := PeriodBounds(sunday, PeriodWeekly)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), start)

	_, _, err = PeriodBounds(now, PeriodType("hourly"))
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestUsageRecord_TotalGB(t *testing.T) {
	u, err := NewUsageRecord("org", StorageTypePrimary, 1000, 3, PeriodMonthly, time.Now())
	require.NoError(t, err)
	require.Equal(t, RoundTo(1000.0/1073741824.0, 4), u.TotalGB())
	require.Equal(t, 0.0, u.TotalGB())

	u.TotalBytes = 2684354560 // 2.5 GiB
	require.Equal(t, 2.5, u.TotalGB())

	_, err = NewUsageRecord("org", StorageType("nope"), 1, 1, PeriodMonthly, time.Now())
	require.ErrorIs(t, err, ErrUnknownStorageType)
}

func TestNewBillingRecord(t *testing.T) {
	start, end := CurrentMonth(time.Now())
	usage := &UsageRecord{OrganizationID: "org", StorageType: StorageTypeS3, TotalBytes: 2684354560}
	price := &Pricing{StorageType: StorageTypeS3, PricePerGB: 0.10, IsActive: true}

	rec, err := NewBillingRecord(usage, price, start, end)
	require.NoError(t, err)
	require.Equal(t, 2.5, rec.TotalGB)
	require.Equal(t, 0.25, rec.TotalCost)
	require.Equal(t, BillingCalculated, rec.Status)

	_, err = NewBillingRecord(usage, &Pricing{StorageType: StorageTypeFirebase, PricePerGB: 1}, start, end)
	require.ErrorIs(t, err, ErrPriceNotConfigured)

	_, err = NewBillingRecord(usage, price, end, start)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 0.13, RoundTo(0.125, 2))
	assert.Equal(t, 1.2346, RoundTo(1.23456, 4))
	assert.Equal(t, 3.0, RoundTo(2.999999, 2))
}
