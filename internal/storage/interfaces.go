// Package storage defines the document storage contract and its providers.
// Every provider stores complete PDF blobs for one organization and exposes
// them through resolvable URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// Service is the contract every storage provider implements.
// An instance is bound to a single organization at construction time.
type Service interface {
	// Type returns the storage type implemented by the provider.
	Type() domain.StorageType

	// UploadDocument stores a document and returns its resolvable URL.
	// Each call writes a distinctly named object, so repeated uploads for the
	// same document never overwrite each other.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - data: Complete document bytes
	//   - documentID: Contract identifier the document belongs to
	//   - kind: Short label naming the copy (e.g., "daily", "version-v3")
	//
	// Returns:
	//   - url: Location of the stored object
	//   - err: Error if the upload fails
	UploadDocument(ctx context.Context, data []byte, documentID, kind string) (url string, err error)

	// ResolveURL returns the URL of the newest object stored for documentID.
	// Fails with ErrObjectNotFound when nothing is stored.
	ResolveURL(ctx context.Context, documentID string) (string, error)

	// DeleteDocument removes every object stored for documentID.
	// Deleting a document that is already absent succeeds.
	DeleteDocument(ctx context.Context, documentID string) error

	// GetSize returns the size of the newest object stored for documentID.
	// Fails with ErrObjectNotFound when nothing is stored.
	GetSize(ctx context.Context, documentID string) (int64, error)

	// ListDocuments enumerates every object stored for the organization,
	// following provider pagination to exhaustion.
	ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error)
}

// Downloader is implemented by providers that can read back objects they
// stored without going through a public URL (private buckets, user drives).
type Downloader interface {
	// Download returns the bytes behind objectURL.
	// Returns ErrForeignURL if the URL was not produced by this provider.
	Download(ctx context.Context, objectURL string) ([]byte, error)
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// DocumentID is the contract the object belongs to.
	DocumentID string `json:"document_id"`

	// Key is the provider specific object name or id.
	Key string `json:"key"`

	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Storage errors
var (
	// ErrObjectNotFound indicates no object exists for the requested document.
	ErrObjectNotFound = fmt.Errorf("%w: object not found", domain.ErrSourceNotFound)

	// ErrForeignURL indicates a URL does not belong to the provider asked to read it.
	ErrForeignURL = errors.New("url does not belong to this provider")
)

// IsNotFound checks if an error indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// newest returns the most recently created object, breaking ties by key.
func newest(objects []ObjectInfo) (ObjectInfo, bool) {
	if len(objects) == 0 {
		return ObjectInfo{}, false
	}
	best := objects[0]
	for _, o := range objects[1:] {
		if o.CreatedAt.After(best.CreatedAt) || (o.CreatedAt.Equal(best.CreatedAt) && o.Key > best.Key) {
			best = o
		}
	}
	return best, true
}
