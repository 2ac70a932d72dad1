package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// AzureBlobAPI is the subset of the Azure Blob client used by AzureStore.
type AzureBlobAPI interface {
	UploadBlob(ctx context.Context, container, name string, data []byte) error
	DownloadBlob(ctx context.Context, container, name string) ([]byte, error)
	DeleteBlob(ctx context.Context, container, name string) error
	ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlob, error)
	// URL returns the account endpoint, e.g. https://acct.blob.core.windows.net/.
	URL() string
}

// AzureBlob holds the attributes of a listed blob.
type AzureBlob struct {
	Name    string
	Size    int64
	Created time.Time
}

// realAzureClient adapts *azblob.Client to AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

// newRealAzureClient uses the connection string when present, otherwise the
// account URL with a managed identity.
func newRealAzureClient(creds map[string]string) (*realAzureClient, error) {
	if cs := creds["connection_string"]; cs != "" {
		client, err := azblob.NewClientFromConnectionString(cs, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob client from connection string: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}

	var opts *azidentity.ManagedIdentityCredentialOptions
	if id := creds["managed_identity_client_id"]; id != "" {
		opts = &azidentity.ManagedIdentityCredentialOptions{ID: azidentity.ClientID(id)}
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure managed identity credential: %w", err)
	}
	client, err := azblob.NewClient(creds["account_url"], cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) UploadBlob(ctx context.Context, container, name string, data []byte) error {
	contentType := "application/pdf"
	_, err := c.client.UploadBuffer(ctx, container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return err
}

func (c *realAzureClient) DownloadBlob(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, container, name string) error {
	_, err := c.client.DeleteBlob(ctx, container, name, nil)
	return err
}

func (c *realAzureClient) ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlob, error) {
	pager := c.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	var out []AzureBlob
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			b := AzureBlob{Name: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					b.Size = *p.ContentLength
				}
				if p.CreationTime != nil {
					b.Created = *p.CreationTime
				}
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *realAzureClient) URL() string {
	return c.client.URL()
}

// AzureStore keeps documents in an Azure Blob Storage container.
type AzureStore struct {
	client       AzureBlobAPI
	container    string
	organization string
	keys         KeyConfig
}

// NewAzureStore builds the azure_blob backup provider from backup credentials.
func NewAzureStore(ctx context.Context, creds map[string]string, organizationID string) (*AzureStore, error) {
	if err := ValidateAzureCredentials(creds); err != nil {
		return nil, err
	}
	client, err := newRealAzureClient(creds)
	if err != nil {
		return nil, err
	}
	return NewAzureStoreWithClient(client, creds["container"], organizationID, creds["prefix"]), nil
}

// NewAzureStoreWithClient creates an AzureStore around an existing client.
func NewAzureStoreWithClient(client AzureBlobAPI, container, organizationID, keyPrefix string) *AzureStore {
	return &AzureStore{
		client:       client,
		container:    container,
		organization: organizationID,
		keys:         KeyConfig{Prefix: keyPrefix},
	}
}

// ValidateAzureCredentials requires a container and either a connection
// string or an account URL for managed identity.
func ValidateAzureCredentials(creds map[string]string) error {
	if err := requireKeys(creds, "container"); err != nil {
		return err
	}
	if strings.TrimSpace(creds["connection_string"]) == "" && strings.TrimSpace(creds["account_url"]) == "" {
		return domain.NewDomainError(domain.ErrIncompleteCredentials, "missing required key", "connection_string or account_url")
	}
	return nil
}

// Type returns domain.StorageTypeAzureBlob.
func (a *AzureStore) Type() domain.StorageType {
	return domain.StorageTypeAzureBlob
}

// UploadDocument writes data to a new blob.
func (a *AzureStore) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	name := a.keys.ObjectKey(a.organization, documentID, kind)
	if err := a.client.UploadBlob(ctx, a.container, name, data); err != nil {
		return "", fmt.Errorf("failed to upload to Azure: %w", err)
	}
	return a.blobURL(name), nil
}

// ResolveURL returns the URL of the newest blob for documentID.
func (a *AzureStore) ResolveURL(ctx context.Context, documentID string) (string, error) {
	obj, err := a.latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteDocument removes every blob for documentID.
func (a *AzureStore) DeleteDocument(ctx context.Context, documentID string) error {
	objects, err := a.list(ctx, a.keys.DocumentPrefix(a.organization, documentID))
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := a.client.DeleteBlob(ctx, a.container, o.Key); err != nil && !isAzureNotFound(err) {
			return fmt.Errorf("failed to delete %s from Azure: %w", o.Key, err)
		}
	}
	return nil
}

// GetSize returns the size of the newest blob for documentID.
func (a *AzureStore) GetSize(ctx context.Context, documentID string) (int64, error) {
	obj, err := a.latest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// ListDocuments lists every blob of the organization.
func (a *AzureStore) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	return a.list(ctx, a.keys.OrganizationPrefix(organizationID))
}

// Download reads a blob produced by this store.
func (a *AzureStore) Download(ctx context.Context, objectURL string) ([]byte, error) {
	rest, ok := strings.CutPrefix(objectURL, a.blobURL(""))
	if !ok || rest == "" {
		return nil, ErrForeignURL
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		return nil, ErrForeignURL
	}

	data, err := a.client.DownloadBlob(ctx, a.container, name)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("failed to download from Azure: %w", err)
	}
	return data, nil
}

func (a *AzureStore) latest(ctx context.Context, documentID string) (ObjectInfo, error) {
	objects, err := a.list(ctx, a.keys.DocumentPrefix(a.organization, documentID))
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := newest(objects)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, documentID)
	}
	return obj, nil
}

func (a *AzureStore) list(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	blobs, err := a.client.ListBlobs(ctx, a.container, prefix)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: container %s", ErrObjectNotFound, a.container)
		}
		return nil, fmt.Errorf("failed to list Azure blobs: %w", err)
	}

	out := make([]ObjectInfo, 0, len(blobs))
	for _, b := range blobs {
		info := ObjectInfo{Key: b.Name, URL: a.blobURL(b.Name), Size: b.Size, CreatedAt: b.Created.UTC()}
		if parts, ok := a.keys.ParseObjectKey(b.Name); ok {
			info.DocumentID = parts.DocumentID
			info.CreatedAt = parts.CreatedAt
		}
		out = append(out, info)
	}
	return out, nil
}

func (a *AzureStore) blobURL(name string) string {
	return strings.TrimRight(a.client.URL(), "/") + "/" + a.container + "/" + escapeKey(name)
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound)
}

var (
	_ Service    = (*AzureStore)(nil)
	_ Downloader = (*AzureStore)(nil)
)
