package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/pkg/crypto"
)

// ConfigSource loads the storage configuration that applies to an organization.
// It returns domain.ErrStorageConfigNotFound when no active row exists.
type ConfigSource interface {
	GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error)
}

// Provider builds the backup provider of one storage type.
type Provider struct {
	// Validate checks the opened credentials before New is called.
	Validate func(creds map[string]string) error

	// New constructs a provider bound to organizationID.
	New func(ctx context.Context, creds map[string]string, organizationID string) (Service, error)
}

// DefaultProviders returns the registry of every supported backup provider.
func DefaultProviders() map[domain.StorageType]Provider {
	return map[domain.StorageType]Provider{
		domain.StorageTypeS3: {
			Validate: ValidateS3Credentials,
			New: func(ctx context.Context, creds map[string]string, org string) (Service, error) {
				return NewCloudBucketStore(ctx, creds, org)
			},
		},
		domain.StorageTypeFirebase: {
			Validate: ValidateGCSCredentials,
			New: func(ctx context.Context, creds map[string]string, org string) (Service, error) {
				return NewManagedBucketStore(ctx, creds, org)
			},
		},
		domain.StorageTypeGoogleDrive: {
			Validate: ValidateDriveCredentials,
			New: func(ctx context.Context, creds map[string]string, org string) (Service, error) {
				return NewUserDriveStore(ctx, creds, org)
			},
		},
		domain.StorageTypeAzureBlob: {
			Validate: ValidateAzureCredentials,
			New: func(ctx context.Context, creds map[string]string, org string) (Service, error) {
				return NewAzureStore(ctx, creds, org)
			},
		},
	}
}

// PrimaryFunc binds the shared primary store to an organization.
type PrimaryFunc func(organizationID string) Service

// S3Primary returns a PrimaryFunc over a primary S3Store.
func S3Primary(store *S3Store) PrimaryFunc {
	return func(organizationID string) Service { return store.For(organizationID) }
}

// MemoryPrimary returns a PrimaryFunc over an in-process bucket.
func MemoryPrimary(bucket *MemoryBucket) PrimaryFunc {
	return func(organizationID string) Service {
		return NewMemoryStore(bucket, domain.StorageTypePrimary, organizationID)
	}
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithProviders replaces the provider registry.
func WithProviders(providers map[domain.StorageType]Provider) FactoryOption {
	return func(f *Factory) { f.providers = providers }
}

// WithSealer sets the sealer used to open sealed credential values.
func WithSealer(s *crypto.Sealer) FactoryOption {
	return func(f *Factory) { f.sealer = s }
}

// WithTransferRecorder wraps every resolved provider with transfer metrics.
func WithTransferRecorder(r TransferRecorder) FactoryOption {
	return func(f *Factory) { f.recorder = r }
}

// Factory resolves storage providers for an organization.
// The configuration is read on every call.
type Factory struct {
	configs   ConfigSource
	primary   PrimaryFunc
	providers map[domain.StorageType]Provider
	sealer    *crypto.Sealer
	recorder  TransferRecorder
	logger    zerolog.Logger
}

// NewFactory creates a new Factory.
func NewFactory(configs ConfigSource, primary PrimaryFunc, logger zerolog.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		configs:   configs,
		primary:   primary,
		providers: DefaultProviders(),
		logger:    logger.With().Str("component", "storage_factory").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ResolvePrimary returns the primary store bound to organizationID.
func (f *Factory) ResolvePrimary(ctx context.Context, organizationID string) (Service, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}
	return f.instrument(f.primary(organizationID)), nil
}

// ResolveBackup returns the backup provider of organizationID, or nil when
// backup is disabled, the type is unknown, or credentials are unusable.
// An error is returned only when the configuration cannot be read.
func (f *Factory) ResolveBackup(ctx context.Context, organizationID string) (Service, error) {
	svc, err := f.buildBackup(ctx, organizationID)
	if err == nil {
		return svc, nil
	}
	if errors.Is(err, domain.ErrConfigurationMissing) {
		f.logger.Debug().
			Str("organization_id", organizationID).
			Err(err).
			Msg("backup provider unavailable")
		return nil, nil
	}
	return nil, err
}

// Resolve returns the provider for storageType. Only primary and the currently
// active backup type resolve. Anything else fails with ErrConfigurationMissing.
func (f *Factory) Resolve(ctx context.Context, organizationID string, storageType domain.StorageType) (Service, error) {
	if storageType == domain.StorageTypePrimary {
		return f.ResolvePrimary(ctx, organizationID)
	}
	if !storageType.IsValid() {
		return nil, domain.NewDomainError(domain.ErrUnknownStorageType, "unsupported value", string(storageType))
	}

	svc, err := f.buildBackup(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if svc.Type() != storageType {
		return nil, domain.NewDomainError(domain.ErrConfigurationMissing,
			"storage type is not the active backup type", string(storageType))
	}
	return svc, nil
}

// ActiveStorageType returns the metered storage type of organizationID.
// Without a configuration row the primary store is used.
func (f *Factory) ActiveStorageType(ctx context.Context, organizationID string) (domain.StorageType, error) {
	cfg, err := f.configs.GetActive(ctx, organizationID)
	if errors.Is(err, domain.ErrStorageConfigNotFound) {
		return domain.StorageTypePrimary, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load storage config: %w", err)
	}
	return cfg.ActiveStorageType()
}

// buildBackup constructs the backup provider. Every reason the provider is
// unavailable wraps domain.ErrConfigurationMissing.
func (f *Factory) buildBackup(ctx context.Context, organizationID string) (Service, error) {
	if organizationID == "" {
		return nil, domain.ErrOrganizationRequired
	}

	cfg, err := f.configs.GetActive(ctx, organizationID)
	if errors.Is(err, domain.ErrStorageConfigNotFound) {
		return nil, fmt.Errorf("%w: no active storage config", domain.ErrConfigurationMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	if !cfg.BackupEnabled() {
		return nil, fmt.Errorf("%w: backup disabled", domain.ErrConfigurationMissing)
	}

	storageType, err := domain.ParseStorageType(cfg.BackupStorageType)
	if err != nil {
		f.logger.Warn().
			Str("organization_id", organizationID).
			Str("backup_storage_type", cfg.BackupStorageType).
			Msg("unknown backup storage type")
		return nil, err
	}
	if !storageType.IsBackupType() {
		return nil, domain.NewDomainError(domain.ErrUnknownStorageType, "not a backup type", string(storageType))
	}

	provider, ok := f.providers[storageType]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrUnknownStorageType, "no provider registered", string(storageType))
	}

	creds, err := f.sealer.OpenAll(cfg.BackupConfig)
	if err != nil {
		f.logger.Warn().
			Str("organization_id", organizationID).
			Str("storage_type", string(storageType)).
			Err(err).
			Msg("failed to open backup credentials")
		return nil, fmt.Errorf("%w: %w", domain.ErrIncompleteCredentials, err)
	}

	if provider.Validate != nil {
		if err := provider.Validate(creds); err != nil {
			f.logger.Warn().
				Str("organization_id", organizationID).
				Str("storage_type", string(storageType)).
				Err(err).
				Msg("incomplete backup credentials")
			return nil, err
		}
	}

	svc, err := provider.New(ctx, creds, organizationID)
	if err != nil {
		f.logger.Warn().
			Str("organization_id", organizationID).
			Str("storage_type", string(storageType)).
			Err(err).
			Msg("failed to create backup provider")
		return nil, fmt.Errorf("%w: failed to create %s provider: %w", domain.ErrConfigurationMissing, storageType, err)
	}
	return f.instrument(svc), nil
}

func (f *Factory) instrument(svc Service) Service {
	if f.recorder == nil {
		return svc
	}
	return &instrumented{Service: svc, recorder: f.recorder}
}
