package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// =============================================================================
// GCS
// =============================================================================

type fakeGCS struct {
	objects map[string][]byte
}

func (f *fakeGCS) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	f.objects[object] = append([]byte(nil), data...)
	return nil
}

func (f *fakeGCS) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	data, ok := f.objects[object]
	if !ok {
		return nil, gcs.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeGCS) Delete(ctx context.Context, bucket, object string) error {
	if _, ok := f.objects[object]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(f.objects, object)
	return nil
}

func (f *fakeGCS) List(ctx context.Context, bucket, prefix string) ([]GCSObject, error) {
	var out []GCSObject
	for name, data := range f.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, GCSObject{Name: name, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func TestGCSStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewGCSStoreWithClient(&fakeGCS{objects: map[string][]byte{}}, "app.appspot.com", "org-1", "")

	url, err := store.UploadDocument(ctx, []byte("pdf-bytes"), "doc-1", "replication")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://firebasestorage.googleapis.com/v0/b/app.appspot.com/o/contracts%2Forg-1%2Fdoc-1%2Freplication-"))
	assert.True(t, strings.HasSuffix(url, "?alt=media"))

	resolved, err := store.ResolveURL(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, url, resolved)

	data, err := store.Download(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	size, err := store.GetSize(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))
	_, err = store.GetSize(ctx, "doc-1")
	require.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Download(ctx, url)
	require.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Download(ctx, "https://firebasestorage.googleapis.com/v0/b/other/o/x?alt=media")
	require.ErrorIs(t, err, ErrForeignURL)
}

// =============================================================================
// Drive
// =============================================================================

type MockDriveAPI struct {
	mock.Mock
}

func (m *MockDriveAPI) CreateFile(ctx context.Context, file *drive.File, data []byte) (*drive.File, error) {
	args := m.Called(ctx, file, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.File), args.Error(1)
}

func (m *MockDriveAPI) ListFiles(ctx context.Context, query, pageToken string) (*drive.FileList, error) {
	args := m.Called(ctx, query, pageToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.FileList), args.Error(1)
}

func (m *MockDriveAPI) DeleteFile(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockDriveAPI) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func TestDriveStore_UploadDocument(t *testing.T) {
	api := new(MockDriveAPI)
	store := NewDriveStoreWithClient(api, "folder-1", "org-1")

	api.On("CreateFile", mock.Anything, mock.MatchedBy(func(f *drive.File) bool {
		return len(f.Parents) == 1 && f.Parents[0] == "folder-1" &&
			f.AppProperties[drivePropOrganization] == "org-1" &&
			f.AppProperties[drivePropDocument] == "doc-1" &&
			f.AppProperties[drivePropKind] == "version-v2" &&
			f.AppProperties[drivePropCreated] != ""
	}), []byte("pdf")).Return(&drive.File{
		Id:             "file-1",
		WebContentLink: "https://drive.google.com/uc?id=file-1&export=download",
	}, nil)

	url, err := store.UploadDocument(context.Background(), []byte("pdf"), "doc-1", "version-v2")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/uc?id=file-1&export=download", url)
	api.AssertExpectations(t)
}

func TestDriveStore_ListFollowsPageTokens(t *testing.T) {
	api := new(MockDriveAPI)
	store := NewDriveStoreWithClient(api, "folder-1", "org-1")

	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	api.On("ListFiles", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "'folder-1' in parents") &&
			strings.Contains(q, "key='organization_id' and value='org-1'") &&
			strings.Contains(q, "key='document_id' and value='doc-1'")
	}), "").Return(&drive.FileList{
		Files: []*drive.File{{
			Id:            "old",
			Size:          10,
			WebViewLink:   "https://drive.google.com/file/d/old/view",
			AppProperties: map[string]string{drivePropDocument: "doc-1", drivePropCreated: "1772323200000000000"},
		}},
		NextPageToken: "page-2",
	}, nil)
	api.On("ListFiles", mock.Anything, mock.Anything, "page-2").Return(&drive.FileList{
		Files: []*drive.File{{
			Id:            "new",
			Size:          20,
			CreatedTime:   newer.Format(time.RFC3339),
			AppProperties: map[string]string{drivePropDocument: "doc-1"},
		}},
	}, nil)

	url, err := store.ResolveURL(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/file/d/new/view", url)
	api.AssertExpectations(t)
}

func TestDriveStore_Download(t *testing.T) {
	api := new(MockDriveAPI)
	store := NewDriveStoreWithClient(api, "folder-1", "org-1")

	api.On("DownloadFile", mock.Anything, "file-1").Return([]byte("pdf"), nil)
	api.On("DownloadFile", mock.Anything, "gone").Return(nil, &googleapi.Error{Code: 404})

	data, err := store.Download(context.Background(), "https://drive.google.com/uc?id=file-1&export=download")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)

	_, err = store.Download(context.Background(), "https://drive.google.com/file/d/gone/view")
	require.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Download(context.Background(), "https://bucket.s3.amazonaws.com/x.pdf")
	require.ErrorIs(t, err, ErrForeignURL)
}

func TestDriveStore_DeleteIgnoresMissing(t *testing.T) {
	api := new(MockDriveAPI)
	store := NewDriveStoreWithClient(api, "folder-1", "org-1")

	api.On("ListFiles", mock.Anything, mock.Anything, "").Return(&drive.FileList{
		Files: []*drive.File{{Id: "a"}, {Id: "b"}},
	}, nil)
	api.On("DeleteFile", mock.Anything, "a").Return(nil)
	api.On("DeleteFile", mock.Anything, "b").Return(&googleapi.Error{Code: 404})

	require.NoError(t, store.DeleteDocument(context.Background(), "doc-1"))
	api.AssertExpectations(t)
}

func TestValidateDriveCredentials(t *testing.T) {
	require.NoError(t, ValidateDriveCredentials(map[string]string{"folder_id": "f", "access_token": "t"}))
	require.NoError(t, ValidateDriveCredentials(map[string]string{"folder_id": "f", "service_account_json": "{}"}))
	require.ErrorIs(t, ValidateDriveCredentials(map[string]string{"folder_id": "f"}), domain.ErrIncompleteCredentials)
	require.ErrorIs(t, ValidateDriveCredentials(map[string]string{"access_token": "t"}), domain.ErrIncompleteCredentials)
}

// =============================================================================
// Azure
// =============================================================================

type fakeAzure struct {
	blobs   map[string][]byte
	listErr error
}

func (f *fakeAzure) UploadBlob(ctx context.Context, container, name string, data []byte) error {
	f.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeAzure) DownloadBlob(ctx context.Context, container, name string) ([]byte, error) {
	data, ok := f.blobs[name]
	if !ok {
		return nil, &azcore.ResponseError{ErrorCode: "BlobNotFound", StatusCode: 404}
	}
	return data, nil
}

func (f *fakeAzure) DeleteBlob(ctx context.Context, container, name string) error {
	delete(f.blobs, name)
	return nil
}

func (f *fakeAzure) ListBlobs(ctx context.Context, container, prefix string) ([]AzureBlob, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []AzureBlob
	for name, data := range f.blobs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, AzureBlob{Name: name, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeAzure) URL() string {
	return "https://acct.blob.core.windows.net/"
}

func TestAzureStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &fakeAzure{blobs: map[string][]byte{}}
	store := NewAzureStoreWithClient(client, "backups", "org-1", "")

	url, err := store.UploadDocument(ctx, []byte("blob"), "doc-1", "daily")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://acct.blob.core.windows.net/backups/contracts/org-1/doc-1/daily-"))

	data, err := store.Download(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	objects, err := store.ListDocuments(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "doc-1", objects[0].DocumentID)

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))
	_, err = store.Download(ctx, url)
	require.ErrorIs(t, err, ErrObjectNotFound)

	client.listErr = &azcore.ResponseError{ErrorCode: "ContainerNotFound", StatusCode: 404}
	_, err = store.ListDocuments(ctx, "org-1")
	require.ErrorIs(t, err, ErrObjectNotFound)

	client.listErr = errors.New("dial tcp: timeout")
	_, err = store.ListDocuments(ctx, "org-1")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestValidateAzureCredentials(t *testing.T) {
	require.NoError(t, ValidateAzureCredentials(map[string]string{"container": "c", "connection_string": "cs"}))
	require.NoError(t, ValidateAzureCredentials(map[string]string{"container": "c", "account_url": "https://a"}))
	require.ErrorIs(t, ValidateAzureCredentials(map[string]string{"container": "c"}), domain.ErrIncompleteCredentials)
	require.ErrorIs(t, ValidateAzureCredentials(map[string]string{"connection_string": "cs"}), domain.ErrIncompleteCredentials)
}
