package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// firebaseDownloadBase is the host serving Firebase Storage download URLs.
const firebaseDownloadBase = "https://firebasestorage.googleapis.com/v0/b/"

// GCSAPI is the subset of the Cloud Storage client used by GCSStore.
type GCSAPI interface {
	// Upload writes data to bucket/object, replacing any existing object.
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error
	// NewReader opens bucket/object for reading.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete removes bucket/object.
	Delete(ctx context.Context, bucket, object string) error
	// List returns every object under prefix.
	List(ctx context.Context, bucket, prefix string) ([]GCSObject, error)
}

// GCSObject holds the attributes of a listed object.
type GCSObject struct {
	Name    string
	Size    int64
	Created time.Time
}

// realGCSClient adapts *gcs.Client to GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) List(ctx context.Context, bucket, prefix string) ([]GCSObject, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []GCSObject
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GCSObject{Name: attrs.Name, Size: attrs.Size, Created: attrs.Created})
	}
	return out, nil
}

// GCSStore is the managed bucket provider (Firebase Storage, backed by GCS).
type GCSStore struct {
	client       GCSAPI
	bucket       string
	organization string
	keys         KeyConfig
}

// NewManagedBucketStore builds the firebase backup provider from backup credentials.
func NewManagedBucketStore(ctx context.Context, creds map[string]string, organizationID string) (*GCSStore, error) {
	if err := ValidateGCSCredentials(creds); err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(ctx, option.WithCredentialsJSON([]byte(creds["service_account_json"])))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return NewGCSStoreWithClient(&realGCSClient{client: client}, creds["bucket"], organizationID, creds["prefix"]), nil
}

// NewGCSStoreWithClient creates a GCSStore around an existing client.
func NewGCSStoreWithClient(client GCSAPI, bucket, organizationID, keyPrefix string) *GCSStore {
	return &GCSStore{
		client:       client,
		bucket:       bucket,
		organization: organizationID,
		keys:         KeyConfig{Prefix: keyPrefix},
	}
}

// ValidateGCSCredentials checks the keys required by the firebase provider.
func ValidateGCSCredentials(creds map[string]string) error {
	return requireKeys(creds, "bucket", "service_account_json")
}

// Type returns domain.StorageTypeFirebase.
func (g *GCSStore) Type() domain.StorageType {
	return domain.StorageTypeFirebase
}

// UploadDocument writes data under a new object name.
func (g *GCSStore) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	name := g.keys.ObjectKey(g.organization, documentID, kind)
	if err := g.client.Upload(ctx, g.bucket, name, data, "application/pdf"); err != nil {
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}
	return g.objectURL(name), nil
}

// ResolveURL returns the download URL of the newest object for documentID.
func (g *GCSStore) ResolveURL(ctx context.Context, documentID string) (string, error) {
	obj, err := g.latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteDocument removes every object for documentID.
func (g *GCSStore) DeleteDocument(ctx context.Context, documentID string) error {
	objects, err := g.list(ctx, g.keys.DocumentPrefix(g.organization, documentID))
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := g.client.Delete(ctx, g.bucket, o.Key); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s from GCS: %w", o.Key, err)
		}
	}
	return nil
}

// GetSize returns the size of the newest object for documentID.
func (g *GCSStore) GetSize(ctx context.Context, documentID string) (int64, error) {
	obj, err := g.latest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// ListDocuments lists every object of the organization.
func (g *GCSStore) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	return g.list(ctx, g.keys.OrganizationPrefix(organizationID))
}

// Download reads an object through the authenticated client.
func (g *GCSStore) Download(ctx context.Context, objectURL string) ([]byte, error) {
	name, ok := g.nameFromURL(objectURL)
	if !ok {
		return nil, ErrForeignURL
	}

	r, err := g.client.NewReader(ctx, g.bucket, name)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

func (g *GCSStore) latest(ctx context.Context, documentID string) (ObjectInfo, error) {
	objects, err := g.list(ctx, g.keys.DocumentPrefix(g.organization, documentID))
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := newest(objects)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, documentID)
	}
	return obj, nil
}

func (g *GCSStore) list(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := g.client.List(ctx, g.bucket, prefix)
	if err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: bucket %s", ErrObjectNotFound, g.bucket)
		}
		return nil, fmt.Errorf("failed to list GCS objects: %w", err)
	}

	out := make([]ObjectInfo, 0, len(objects))
	for _, o := range objects {
		info := ObjectInfo{Key: o.Name, URL: g.objectURL(o.Name), Size: o.Size, CreatedAt: o.Created.UTC()}
		if parts, ok := g.keys.ParseObjectKey(o.Name); ok {
			info.DocumentID = parts.DocumentID
			info.CreatedAt = parts.CreatedAt
		}
		out = append(out, info)
	}
	return out, nil
}

func (g *GCSStore) objectURL(name string) string {
	return firebaseDownloadBase + g.bucket + "/o/" + url.PathEscape(name) + "?alt=media"
}

func (g *GCSStore) nameFromURL(objectURL string) (string, bool) {
	rest, ok := strings.CutPrefix(objectURL, firebaseDownloadBase+g.bucket+"/o/")
	if !ok {
		return "", false
	}
	escaped, _, _ := strings.Cut(rest, "?")
	name, err := url.PathUnescape(escaped)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

var (
	_ Service    = (*GCSStore)(nil)
	_ Downloader = (*GCSStore)(nil)
)
