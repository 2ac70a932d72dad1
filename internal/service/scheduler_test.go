package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
)

func newTestScheduler(env *testEnv, config SchedulerConfig) *Scheduler {
	return NewScheduler(env.orgs, env.backup, env.usage, env.billing, zerolog.Nop(), config)
}

func TestScheduler_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.orgs = []*domain.Organization{
		{ID: testOrg, IsActive: true},
		{ID: otherOrg, IsActive: true},
	}
	env.pricing.prices[domain.StorageTypePrimary] = primaryPrice(1)
	env.seedDocument(t, testOrg, "doc-1", pdfHeader)
	env.seedDocument(t, testOrg, "doc-2", pdfHeader)
	env.seedDocument(t, otherOrg, "doc-3", pdfHeader)

	run := newTestScheduler(env, DefaultSchedulerConfig()).RunOnce(context.Background())

	require.Len(t, run.Backups, 2)
	assert.Equal(t, 2, run.Backups[0].Success)
	assert.Equal(t, 1, run.Backups[1].Success)
	require.NotNil(t, run.Usage)
	assert.Equal(t, 2, run.Usage.Success)
	require.NotNil(t, run.Billing)
	assert.Equal(t, 2, run.Billing.Success)

	assert.Equal(t, 3, env.backups.count())
	assert.Len(t, env.billingRep.records, 2)
}

func TestScheduler_DisabledJobs(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.orgs = []*domain.Organization{{ID: testOrg, IsActive: true}}
	env.seedDocument(t, testOrg, "doc-1", pdfHeader)

	run := newTestScheduler(env, SchedulerConfig{UsageInterval: time.Hour}).RunOnce(context.Background())
	assert.Nil(t, run.Backups)
	assert.Nil(t, run.Billing)
	require.NotNil(t, run.Usage)
	assert.Zero(t, env.backups.count())
}

func TestScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.orgs = []*domain.Organization{{ID: testOrg, IsActive: true}}
	env.seedDocument(t, testOrg, "doc-1", pdfHeader)

	s := newTestScheduler(env, SchedulerConfig{DailyBackupInterval: time.Hour})
	s.Start()
	s.Start()

	require.Eventually(t, func() bool { return env.backups.count() == 1 }, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, env.backups.count())
}
