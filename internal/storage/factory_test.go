package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/pkg/crypto"
)

type fakeConfigSource struct {
	cfg *domain.StorageConfig
	err error
}

func (f *fakeConfigSource) GetActive(ctx context.Context, organizationID string) (*domain.StorageConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.cfg == nil {
		return nil, domain.ErrStorageConfigNotFound
	}
	return f.cfg, nil
}

type recordingProvider struct {
	calls int
	creds map[string]string
	err   error
}

func (r *recordingProvider) provider(t domain.StorageType) Provider {
	return Provider{
		Validate: ValidateS3Credentials,
		New: func(ctx context.Context, creds map[string]string, org string) (Service, error) {
			r.calls++
			r.creds = creds
			if r.err != nil {
				return nil, r.err
			}
			return NewMemoryStore(NewMemoryBucket("backup"), t, org), nil
		},
	}
}

func s3Creds() map[string]string {
	return map[string]string{
		"bucket":            "b",
		"region":            "r",
		"access_key_id":     "id",
		"secret_access_key": "secret",
	}
}

func activeConfig(backupType string, creds map[string]string) *domain.StorageConfig {
	return &domain.StorageConfig{
		StorageType:       domain.StorageTypePrimary,
		BackupStorageType: backupType,
		BackupConfig:      creds,
		BackupIsActive:    true,
		IsActive:          true,
	}
}

func TestFactory_ResolveBackup(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeConfigSource)
		wantNil   bool
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "configured",
			setup:     func(s *fakeConfigSource) { s.cfg = activeConfig("s3", s3Creds()) },
			wantCalls: 1,
		},
		{
			name:    "no config row",
			setup:   func(s *fakeConfigSource) {},
			wantNil: true,
		},
		{
			name: "backup inactive",
			setup: func(s *fakeConfigSource) {
				s.cfg = activeConfig("s3", s3Creds())
				s.cfg.BackupIsActive = false
			},
			wantNil: true,
		},
		{
			name: "config inactive",
			setup: func(s *fakeConfigSource) {
				s.cfg = activeConfig("s3", s3Creds())
				s.cfg.IsActive = false
			},
			wantNil: true,
		},
		{
			name:    "unknown type",
			setup:   func(s *fakeConfigSource) { s.cfg = activeConfig("dropbox", s3Creds()) },
			wantNil: true,
		},
		{
			name:    "primary is not a backup type",
			setup:   func(s *fakeConfigSource) { s.cfg = activeConfig("primary", s3Creds()) },
			wantNil: true,
		},
		{
			name: "incomplete credentials",
			setup: func(s *fakeConfigSource) {
				creds := s3Creds()
				delete(creds, "secret_access_key")
				s.cfg = activeConfig("s3", creds)
			},
			wantNil: true,
		},
		{
			name:    "config read failure",
			setup:   func(s *fakeConfigSource) { s.err = errors.New("database is down") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeConfigSource{}
			tt.setup(src)
			rec := &recordingProvider{}

			f := NewFactory(src, MemoryPrimary(NewMemoryBucket("primary")), zerolog.Nop(),
				WithProviders(map[domain.StorageType]Provider{domain.StorageTypeS3: rec.provider(domain.StorageTypeS3)}))

			svc, err := f.ResolveBackup(context.Background(), "org-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
			} else {
				require.NotNil(t, svc)
				assert.Equal(t, domain.StorageTypeS3, svc.Type())
			}
			assert.Equal(t, tt.wantCalls, rec.calls, "provider must only be built when resolvable")
		})
	}
}

func TestFactory_ResolveBackupConstructorFailure(t *testing.T) {
	src := &fakeConfigSource{cfg: activeConfig("s3", s3Creds())}
	rec := &recordingProvider{err: errors.New("bad endpoint")}
	f := NewFactory(src, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop(),
		WithProviders(map[domain.StorageType]Provider{domain.StorageTypeS3: rec.provider(domain.StorageTypeS3)}))

	svc, err := f.ResolveBackup(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Nil(t, svc)

	_, err = f.Resolve(context.Background(), "org-1", domain.StorageTypeS3)
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestFactory_SealedCredentials(t *testing.T) {
	sealer, err := crypto.NewSealerFromHex("0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f")
	require.NoError(t, err)

	creds := s3Creds()
	creds["secret_access_key"], err = sealer.Seal("top-secret")
	require.NoError(t, err)

	src := &fakeConfigSource{cfg: activeConfig("s3", creds)}
	rec := &recordingProvider{}
	providers := map[domain.StorageType]Provider{domain.StorageTypeS3: rec.provider(domain.StorageTypeS3)}

	f := NewFactory(src, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop(), WithProviders(providers), WithSealer(sealer))
	svc, err := f.ResolveBackup(context.Background(), "org-1")
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, "top-secret", rec.creds["secret_access_key"])

	// Without a sealer the provider is treated as unconfigured.
	rec = &recordingProvider{}
	f = NewFactory(src, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop(),
		WithProviders(map[domain.StorageType]Provider{domain.StorageTypeS3: rec.provider(domain.StorageTypeS3)}))
	svc, err = f.ResolveBackup(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Nil(t, svc)
	assert.Zero(t, rec.calls)
}

func TestFactory_Resolve(t *testing.T) {
	src := &fakeConfigSource{cfg: activeConfig("s3", s3Creds())}
	rec := &recordingProvider{}
	f := NewFactory(src, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop(),
		WithProviders(map[domain.StorageType]Provider{domain.StorageTypeS3: rec.provider(domain.StorageTypeS3)}))
	ctx := context.Background()

	svc, err := f.Resolve(ctx, "org-1", domain.StorageTypePrimary)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypePrimary, svc.Type())

	svc, err = f.Resolve(ctx, "org-1", domain.StorageTypeS3)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypeS3, svc.Type())

	_, err = f.Resolve(ctx, "org-1", domain.StorageTypeGoogleDrive)
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)

	_, err = f.Resolve(ctx, "org-1", domain.StorageType("ftp"))
	require.ErrorIs(t, err, domain.ErrUnknownStorageType)

	_, err = f.ResolvePrimary(ctx, "")
	require.ErrorIs(t, err, domain.ErrOrganizationRequired)
}

func TestFactory_ActiveStorageType(t *testing.T) {
	ctx := context.Background()
	src := &fakeConfigSource{}
	f := NewFactory(src, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop())

	st, err := f.ActiveStorageType(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypePrimary, st)

	src.cfg = activeConfig("s3", nil)
	src.cfg.StorageType = "firebase"
	st, err = f.ActiveStorageType(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypeFirebase, st)

	src.cfg.StorageType = "nas"
	_, err = f.ActiveStorageType(ctx, "org-1")
	require.ErrorIs(t, err, domain.ErrUnknownStorageType)

	// An inactive row meters primary.
	src.cfg.StorageType = "s3"
	src.cfg.IsActive = false
	st, err = f.ActiveStorageType(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageTypePrimary, st)
}

type countingRecorder struct {
	ops []string
}

func (c *countingRecorder) RecordTransfer(provider, operation string, bytes int64, err error) {
	c.ops = append(c.ops, provider+":"+operation)
}

func TestFactory_TransferRecorder(t *testing.T) {
	rec := &countingRecorder{}
	f := NewFactory(&fakeConfigSource{}, MemoryPrimary(NewMemoryBucket("p")), zerolog.Nop(), WithTransferRecorder(rec))
	ctx := context.Background()

	svc, err := f.ResolvePrimary(ctx, "org-1")
	require.NoError(t, err)

	url, err := svc.UploadDocument(ctx, []byte("x"), "doc", "original")
	require.NoError(t, err)

	d, ok := svc.(Downloader)
	require.True(t, ok)
	_, err = d.Download(ctx, url)
	require.NoError(t, err)

	_, err = d.Download(ctx, "https://elsewhere/x.pdf")
	require.ErrorIs(t, err, ErrForeignURL)

	assert.Equal(t, []string{"primary:upload", "primary:download"}, rec.ops)
}
