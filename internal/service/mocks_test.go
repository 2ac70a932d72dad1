package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/lock"
	"github.com/prn-tf/contract-storage/internal/metrics"
	"github.com/prn-tf/contract-storage/internal/storage"
	"github.com/prn-tf/contract-storage/internal/transfer"
)

var errDatabaseDown = errors.New("database is down")

// MockContractRepository is a mock implementation of repository.ContractRepository.
type MockContractRepository struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	getErr    error
	updateErr error
}

func NewMockContractRepository() *MockContractRepository {
	return &MockContractRepository{docs: make(map[string]*domain.Document)}
}

func (m *MockContractRepository) add(doc *domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ContractID] = doc
}

func (m *MockContractRepository) GetDocument(ctx context.Context, contractID string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.docs[contractID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	c := *d
	return &c, nil
}

func (m *MockContractRepository) ListDocuments(ctx context.Context, organizationID string) ([]*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*domain.Document
	for _, d := range m.docs {
		if d.OrganizationID == organizationID && d.HasLocation() {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	return out, nil
}

func (m *MockContractRepository) UpdateLocation(ctx context.Context, contractID, url string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	d, ok := m.docs[contractID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.URL = url
	d.Size = size
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockContractRepository) url(contractID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[contractID].URL
}

// MockOrganizationRepository is a mock implementation of repository.OrganizationRepository.
type MockOrganizationRepository struct {
	orgs    []*domain.Organization
	listErr error
}

func (m *MockOrganizationRepository) ListActive(ctx context.Context) ([]*domain.Organization, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Organization
	for _, o := range m.orgs {
		if o.IsActive {
			out = append(out, o)
		}
	}
	return out, nil
}

// MockBackupRepository is a mock implementation of repository.BackupRepository.
type MockBackupRepository struct {
	mu        sync.Mutex
	backups   map[uuid.UUID]*domain.Backup
	order     []uuid.UUID
	sequences map[string]int
	createErr error
}

func NewMockBackupRepository() *MockBackupRepository {
	return &MockBackupRepository{
		backups:   make(map[uuid.UUID]*domain.Backup),
		sequences: make(map[string]int),
	}
}

func (m *MockBackupRepository) Create(ctx context.Context, backup *domain.Backup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if backup.IsVersion() {
		for _, b := range m.backups {
			if b.ContractID == backup.ContractID && b.IsVersion() && *b.VersionNumber == *backup.VersionNumber {
				return domain.ErrInvalidVersionNumber
			}
		}
	}
	m.backups[backup.ID] = backup
	m.order = append(m.order, backup.ID)
	return nil
}

func (m *MockBackupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.backups[id]
	if !ok {
		return nil, domain.ErrBackupNotFound
	}
	return b, nil
}

func (m *MockBackupRepository) ListByContract(ctx context.Context, contractID string, limit int) ([]*domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Backup
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if b := m.backups[m.order[i]]; b.ContractID == contractID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockBackupRepository) NextVersionNumber(ctx context.Context, contractID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[contractID]++
	return m.sequences[contractID], nil
}

func (m *MockBackupRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backups)
}

// MockMigrationRepository is a mock implementation of repository.MigrationRepository.
type MockMigrationRepository struct {
	mu         sync.Mutex
	migrations map[uuid.UUID]*domain.Migration
	order      []uuid.UUID
	finishes   map[uuid.UUID]int
	createErr  error
	finishErr  error
}

func NewMockMigrationRepository() *MockMigrationRepository {
	return &MockMigrationRepository{
		migrations: make(map[uuid.UUID]*domain.Migration),
		finishes:   make(map[uuid.UUID]int),
	}
}

func (m *MockMigrationRepository) Create(ctx context.Context, mig *domain.Migration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	c := *mig
	m.migrations[mig.ID] = &c
	m.order = append(m.order, mig.ID)
	return nil
}

func (m *MockMigrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mig, ok := m.migrations[id]
	if !ok {
		return nil, domain.ErrMigrationNotFound
	}
	c := *mig
	return &c, nil
}

func (m *MockMigrationRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Migration
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		c := *m.migrations[m.order[i]]
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockMigrationRepository) Finish(ctx context.Context, mig *domain.Migration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.finishErr != nil {
		return m.finishErr
	}
	stored, ok := m.migrations[mig.ID]
	if !ok {
		return domain.ErrMigrationNotFound
	}
	if stored.Status.IsTerminal() {
		return domain.ErrInvalidMigrationTransition
	}
	m.finishes[mig.ID]++
	c := *mig
	m.migrations[mig.ID] = &c
	return nil
}

func (m *MockMigrationRepository) all() []*domain.Migration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Migration, 0, len(m.order))
	for _, id := range m.order {
		c := *m.migrations[id]
		out = append(out, &c)
	}
	return out
}

// MockUsageRepository is a mock implementation of repository.UsageRepository.
type MockUsageRepository struct {
	mu        sync.Mutex
	records   []*domain.UsageRecord
	upsertErr error
}

func (m *MockUsageRepository) Upsert(ctx context.Context, u *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for i, r := range m.records {
		if r.OrganizationID == u.OrganizationID && r.StorageType == u.StorageType &&
			r.PeriodType == u.PeriodType && r.PeriodStart.Equal(u.PeriodStart) {
			u.ID = r.ID
			m.records[i] = u
			return nil
		}
	}
	m.records = append(m.records, u)
	return nil
}

func (m *MockUsageRepository) latest(match func(*domain.UsageRecord) bool) (*domain.UsageRecord, error) {
	var best *domain.UsageRecord
	for _, r := range m.records {
		if match(r) && (best == nil || r.UpdatedAt.After(best.UpdatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil, domain.ErrUsageNotFound
	}
	return best, nil
}

func (m *MockUsageRepository) GetLatest(ctx context.Context, organizationID string) (*domain.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r *domain.UsageRecord) bool { return r.OrganizationID == organizationID })
}

func (m *MockUsageRepository) GetLatestInPeriod(ctx context.Context, organizationID string, start, end time.Time) (*domain.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(func(r *domain.UsageRecord) bool {
		return r.OrganizationID == organizationID && r.Overlaps(start, end)
	})
}

func (m *MockUsageRepository) ListHistory(ctx context.Context, organizationID string, limit int) ([]*domain.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.UsageRecord
	for _, r := range m.records {
		if r.OrganizationID == organizationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockBillingRepository is a mock implementation of repository.BillingRepository.
type MockBillingRepository struct {
	mu      sync.Mutex
	records []*domain.BillingRecord
}

func (m *MockBillingRepository) Upsert(ctx context.Context, b *domain.BillingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.OrganizationID == b.OrganizationID && r.StorageType == b.StorageType &&
			r.PeriodStart.Equal(b.PeriodStart) && r.PeriodEnd.Equal(b.PeriodEnd) {
			b.ID = r.ID
			m.records[i] = b
			return nil
		}
	}
	m.records = append(m.records, b)
	return nil
}

func (m *MockBillingRepository) Get(ctx context.Context, organizationID string, storageType domain.StorageType, start, end time.Time) (*domain.BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.OrganizationID == organizationID && r.StorageType == storageType &&
			r.PeriodStart.Equal(start) && r.PeriodEnd.Equal(end) {
			return r, nil
		}
	}
	return nil, domain.ErrBillingNotFound
}

func (m *MockBillingRepository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BillingRecord
	for _, r := range m.records {
		if r.OrganizationID == organizationID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

// MockPricingRepository is a mock implementation of repository.PricingRepository.
type MockPricingRepository struct {
	prices map[domain.StorageType]*domain.Pricing
}

func (m *MockPricingRepository) GetActive(ctx context.Context, storageType domain.StorageType) (*domain.Pricing, error) {
	p, ok := m.prices[storageType]
	if !ok || !p.IsActive {
		return nil, domain.ErrPriceNotConfigured
	}
	return p, nil
}

func (m *MockPricingRepository) Save(ctx context.Context, p *domain.Pricing) error {
	m.prices[p.StorageType] = p
	return nil
}

// MockStorageConfigRepository serves one config row to the storage factory.
type MockStorageConfigRepository struct {
	mu  sync.Mutex
	cfg *domain.StorageConfig
	err error
}

func (m *MockStorageConfigRepository) GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cfg == nil {
		return nil, domain.ErrStorageConfigNotFound
	}
	c := *m.cfg
	return &c, nil
}

func (m *MockStorageConfigRepository) set(cfg *domain.StorageConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// unreachableFetcher fails every HTTP fetch; documents in tests live in memory stores.
type unreachableFetcher struct{}

func (unreachableFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("network disabled in tests")
}

const (
	testOrg   = "org-1"
	otherOrg  = "org-2"
	pdfHeader = "%PDF-1.7 contract"
)

// testEnv wires every service over mocks and memory stores.
type testEnv struct {
	contracts  *MockContractRepository
	orgs       *MockOrganizationRepository
	backups    *MockBackupRepository
	migrations *MockMigrationRepository
	usageRepo  *MockUsageRepository
	billingRep *MockBillingRepository
	pricing    *MockPricingRepository
	configs    *MockStorageConfigRepository

	primaryBucket *storage.MemoryBucket
	backupBucket  *storage.MemoryBucket
	factory       *storage.Factory
	locker        *lock.MemoryLocker
	metrics       *metrics.Metrics

	backup    *BackupService
	versions  *VersioningService
	migration *MigrationService
	usage     *UsageService
	billing   *BillingService
}

func backupEnabledConfig() *domain.StorageConfig {
	return &domain.StorageConfig{
		StorageType:       domain.StorageTypePrimary,
		BackupStorageType: string(domain.StorageTypeS3),
		BackupConfig:      map[string]string{"bucket": "backups"},
		BackupIsActive:    true,
		IsActive:          true,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		contracts:     NewMockContractRepository(),
		orgs:          &MockOrganizationRepository{},
		backups:       NewMockBackupRepository(),
		migrations:    NewMockMigrationRepository(),
		usageRepo:     &MockUsageRepository{},
		billingRep:    &MockBillingRepository{},
		pricing:       &MockPricingRepository{prices: make(map[domain.StorageType]*domain.Pricing)},
		configs:       &MockStorageConfigRepository{cfg: backupEnabledConfig()},
		primaryBucket: storage.NewMemoryBucket("primary"),
		backupBucket:  storage.NewMemoryBucket("backup"),
		locker:        lock.NewMemoryLocker(),
		metrics:       metrics.New(),
	}
	t.Cleanup(env.locker.Close)

	providers := map[domain.StorageType]storage.Provider{
		domain.StorageTypeS3: {
			New: func(ctx context.Context, creds map[string]string, org string) (storage.Service, error) {
				return storage.NewMemoryStore(env.backupBucket, domain.StorageTypeS3, org), nil
			},
		},
	}
	logger := zerolog.Nop()
	env.factory = storage.NewFactory(env.configs, storage.MemoryPrimary(env.primaryBucket), logger,
		storage.WithProviders(providers), storage.WithTransferRecorder(env.metrics))

	batch := NewBatchRunner(env.locker, env.metrics, logger, BatchConfig{Workers: 3, LockTTL: time.Minute})
	tc := TransferConfig{Timeout: 5 * time.Second}
	var fetcher transfer.Fetcher = unreachableFetcher{}

	env.backup = NewBackupService(env.contracts, env.backups, env.factory, fetcher, batch, env.metrics, logger, tc)
	env.versions = NewVersioningService(env.contracts, env.backups, env.backup, logger)
	env.migration = NewMigrationService(env.contracts, env.migrations, env.factory, fetcher, batch, env.metrics, logger, tc)
	env.usage = NewUsageService(env.orgs, env.usageRepo, env.factory, batch, env.metrics, logger)
	env.billing = NewBillingService(env.orgs, env.usageRepo, env.billingRep, env.pricing, env.usage, batch, env.metrics, logger)
	return env
}

// seedDocument stores content in primary and registers the document.
func (e *testEnv) seedDocument(t *testing.T, org, id, content string) *domain.Document {
	t.Helper()
	store := storage.NewMemoryStore(e.primaryBucket, domain.StorageTypePrimary, org)
	url, err := store.UploadDocument(context.Background(), []byte(content), id, "original")
	require.NoError(t, err)
	doc := &domain.Document{ContractID: id, OrganizationID: org, URL: url, Size: int64(len(content))}
	e.contracts.add(doc)
	return doc
}

func (e *testEnv) primaryStore(org string) *storage.MemoryStore {
	return storage.NewMemoryStore(e.primaryBucket, domain.StorageTypePrimary, org)
}

func (e *testEnv) backupStore(org string) *storage.MemoryStore {
	return storage.NewMemoryStore(e.backupBucket, domain.StorageTypeS3, org)
}
