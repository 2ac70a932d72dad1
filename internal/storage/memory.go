package storage

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// MemoryStore is an in-process Service used for local runs and tests.
// It is safe for concurrent use. Stores created with the same Bucket share data.
type MemoryStore struct {
	bucket       *MemoryBucket
	storageType  domain.StorageType
	organization string
	keys         KeyConfig
}

// MemoryBucket holds the objects of one or more MemoryStore views.
type MemoryBucket struct {
	mu      sync.RWMutex
	name    string
	objects map[string][]byte
}

// NewMemoryBucket creates an empty bucket. The name appears in URLs.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, objects: make(map[string][]byte)}
}

// NewMemoryStore creates a view of bucket bound to organizationID.
func NewMemoryStore(bucket *MemoryBucket, storageType domain.StorageType, organizationID string) *MemoryStore {
	return &MemoryStore{
		bucket:       bucket,
		storageType:  storageType,
		organization: organizationID,
	}
}

// Type returns the storage type this store stands in for.
func (m *MemoryStore) Type() domain.StorageType {
	return m.storageType
}

// UploadDocument stores a copy of data under a new key.
func (m *MemoryStore) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := m.keys.ObjectKey(m.organization, documentID, kind)

	m.bucket.mu.Lock()
	m.bucket.objects[key] = append([]byte(nil), data...)
	m.bucket.mu.Unlock()

	return m.objectURL(key), nil
}

// ResolveURL returns the URL of the newest object for documentID.
func (m *MemoryStore) ResolveURL(ctx context.Context, documentID string) (string, error) {
	obj, err := m.latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteDocument removes every object for documentID.
func (m *MemoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := m.keys.DocumentPrefix(m.organization, documentID)

	m.bucket.mu.Lock()
	defer m.bucket.mu.Unlock()
	for key := range m.bucket.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.bucket.objects, key)
		}
	}
	return nil
}

// GetSize returns the size of the newest object for documentID.
func (m *MemoryStore) GetSize(ctx context.Context, documentID string) (int64, error) {
	obj, err := m.latest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// ListDocuments returns every object of the organization sorted by key.
func (m *MemoryStore) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	return m.list(ctx, m.keys.OrganizationPrefix(organizationID))
}

// Download returns the bytes behind a URL produced by this bucket.
func (m *MemoryStore) Download(ctx context.Context, objectURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := m.keyFromURL(objectURL)
	if !ok {
		return nil, ErrForeignURL
	}

	m.bucket.mu.RLock()
	defer m.bucket.mu.RUnlock()
	data, exists := m.bucket.objects[key]
	if !exists {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

// Corrupt flips the first byte of the object behind objectURL. Test helper.
func (m *MemoryStore) Corrupt(objectURL string) bool {
	key, ok := m.keyFromURL(objectURL)
	if !ok {
		return false
	}
	m.bucket.mu.Lock()
	defer m.bucket.mu.Unlock()
	data, exists := m.bucket.objects[key]
	if !exists || len(data) == 0 {
		return false
	}
	data[0] ^= 0xFF
	return true
}

// Len returns the number of objects in the bucket.
func (b *MemoryBucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

func (m *MemoryStore) latest(ctx context.Context, documentID string) (ObjectInfo, error) {
	objects, err := m.list(ctx, m.keys.DocumentPrefix(m.organization, documentID))
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := newest(objects)
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return obj, nil
}

func (m *MemoryStore) list(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.bucket.mu.RLock()
	defer m.bucket.mu.RUnlock()

	var out []ObjectInfo
	for key, data := range m.bucket.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		info := ObjectInfo{Key: key, URL: m.objectURL(key), Size: int64(len(data))}
		if parts, ok := m.keys.ParseObjectKey(key); ok {
			info.DocumentID = parts.DocumentID
			info.CreatedAt = parts.CreatedAt
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) objectURL(key string) string {
	u := url.URL{Scheme: "memory", Host: m.bucket.name, Path: "/" + key}
	return u.String()
}

func (m *MemoryStore) keyFromURL(objectURL string) (string, bool) {
	u, err := url.Parse(objectURL)
	if err != nil || u.Scheme != "memory" || u.Host != m.bucket.name {
		return "", false
	}
	return strings.TrimPrefix(u.Path, "/"), true
}

// Ensure MemoryStore implements Service and Downloader.
var (
	_ Service    = (*MemoryStore)(nil)
	_ Downloader = (*MemoryStore)(nil)
)
