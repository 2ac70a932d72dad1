package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/contract-storage/internal/domain"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := NewMemoryBucket("primary")
	store := NewMemoryStore(bucket, domain.StorageTypePrimary, "org-1")

	first, err := store.UploadDocument(ctx, []byte("first"), "doc-1", "original")
	require.NoError(t, err)
	second, err := store.UploadDocument(ctx, []byte("second!"), "doc-1", "original")
	require.NoError(t, err)
	require.NotEqual(t, first, second, "uploads must not overwrite each other")

	resolved, err := store.ResolveURL(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, second, resolved)

	size, err := store.GetSize(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	data, err := store.Download(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	objects, err := store.ListDocuments(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "doc-1", objects[0].DocumentID)

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))
	require.NoError(t, store.DeleteDocument(ctx, "doc-1"), "deleting an absent document succeeds")

	_, err = store.ResolveURL(ctx, "doc-1")
	require.ErrorIs(t, err, ErrObjectNotFound)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)

	_, err = store.GetSize(ctx, "doc-1")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStore_OrganizationIsolation(t *testing.T) {
	ctx := context.Background()
	bucket := NewMemoryBucket("shared")
	a := NewMemoryStore(bucket, domain.StorageTypePrimary, "org-a")
	b := NewMemoryStore(bucket, domain.StorageTypePrimary, "org-b")

	_, err := a.UploadDocument(ctx, []byte("a"), "doc", "original")
	require.NoError(t, err)

	_, err = b.ResolveURL(ctx, "doc")
	require.ErrorIs(t, err, ErrObjectNotFound)

	objects, err := b.ListDocuments(ctx, "org-b")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestMemoryStore_Download(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewMemoryBucket("b1"), domain.StorageTypeS3, "org")
	other := NewMemoryStore(NewMemoryBucket("b2"), domain.StorageTypeS3, "org")

	url, err := store.UploadDocument(ctx, []byte("pdf"), "doc", "daily")
	require.NoError(t, err)

	_, err = other.Download(ctx, url)
	require.ErrorIs(t, err, ErrForeignURL)

	_, err = store.Download(ctx, "https://example.com/doc.pdf")
	require.ErrorIs(t, err, ErrForeignURL)

	_, err = store.Download(ctx, "memory://b1/contracts/org/doc/missing-1.pdf")
	require.ErrorIs(t, err, ErrObjectNotFound)

	require.True(t, store.Corrupt(url))
	data, err := store.Download(ctx, url)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("pdf"), data)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore(NewMemoryBucket("b"), domain.StorageTypePrimary, "org")
	_, err := store.UploadDocument(ctx, []byte("x"), "doc", "original")
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_LookalikeIDs(t *testing.T) {
	ctx := context.Background()
	bucket := NewMemoryBucket("shared")
	spaced := NewMemoryStore(bucket, domain.StorageTypePrimary, "acme 1")
	underscored := NewMemoryStore(bucket, domain.StorageTypePrimary, "acme_1")

	_, err := spaced.UploadDocument(ctx, []byte("0123456789"), "doc", "original")
	require.NoError(t, err)
	_, err = underscored.UploadDocument(ctx, []byte("x"), "doc", "original")
	require.NoError(t, err)

	objects, err := underscored.ListDocuments(ctx, "acme_1")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(1), objects[0].Size)

	// Document ids that differ only by a separator stay apart.
	_, err = underscored.UploadDocument(ctx, []byte("slash"), "a/b", "original")
	require.NoError(t, err)
	_, err = underscored.GetSize(ctx, "a_b")
	require.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, underscored.DeleteDocument(ctx, "a_b"))

	size, err := underscored.GetSize(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}
