package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// Drive app property names attached to every uploaded file.
const (
	drivePropOrganization = "organization_id"
	drivePropDocument     = "document_id"
	drivePropKind         = "kind"
	drivePropCreated      = "created_unix_nano"
)

const driveFileFields = "id, name, size, createdTime, webContentLink, webViewLink, appProperties"

// DriveAPI is the subset of the Drive v3 API used by DriveStore.
type DriveAPI interface {
	CreateFile(ctx context.Context, file *drive.File, data []byte) (*drive.File, error)
	ListFiles(ctx context.Context, query, pageToken string) (*drive.FileList, error)
	DeleteFile(ctx context.Context, fileID string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// realDriveClient adapts *drive.Service to DriveAPI.
type realDriveClient struct {
	svc *drive.Service
}

func (c *realDriveClient) CreateFile(ctx context.Context, file *drive.File, data []byte) (*drive.File, error) {
	return c.svc.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType("application/pdf")).
		Fields(driveFileFields).
		Context(ctx).
		Do()
}

func (c *realDriveClient) ListFiles(ctx context.Context, query, pageToken string) (*drive.FileList, error) {
	call := c.svc.Files.List().
		Q(query).
		Spaces("drive").
		Fields("nextPageToken, files("+driveFileFields+")").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (c *realDriveClient) DeleteFile(ctx context.Context, fileID string) error {
	return c.svc.Files.Delete(fileID).Context(ctx).Do()
}

func (c *realDriveClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// DriveStore keeps documents in a folder of a user's Google Drive.
// Files are tagged with app properties so listing never depends on file names.
type DriveStore struct {
	client       DriveAPI
	folderID     string
	organization string
	keys         KeyConfig
}

// NewUserDriveStore builds the google_drive backup provider from backup credentials.
// A service account JSON takes precedence over an OAuth access token.
func NewUserDriveStore(ctx context.Context, creds map[string]string, organizationID string) (*DriveStore, error) {
	if err := ValidateDriveCredentials(creds); err != nil {
		return nil, err
	}

	var opt option.ClientOption
	if sa := creds["service_account_json"]; sa != "" {
		opt = option.WithCredentialsJSON([]byte(sa))
	} else {
		opt = option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds["access_token"]}))
	}

	svc, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	return NewDriveStoreWithClient(&realDriveClient{svc: svc}, creds["folder_id"], organizationID), nil
}

// NewDriveStoreWithClient creates a DriveStore around an existing client.
func NewDriveStoreWithClient(client DriveAPI, folderID, organizationID string) *DriveStore {
	return &DriveStore{client: client, folderID: folderID, organization: organizationID}
}

// ValidateDriveCredentials requires a folder and one form of authentication.
func ValidateDriveCredentials(creds map[string]string) error {
	if err := requireKeys(creds, "folder_id"); err != nil {
		return err
	}
	if strings.TrimSpace(creds["service_account_json"]) == "" && strings.TrimSpace(creds["access_token"]) == "" {
		return domain.NewDomainError(domain.ErrIncompleteCredentials, "missing required key", "service_account_json or access_token")
	}
	return nil
}

// Type returns domain.StorageTypeGoogleDrive.
func (d *DriveStore) Type() domain.StorageType {
	return domain.StorageTypeGoogleDrive
}

// UploadDocument creates a new file in the folder.
func (d *DriveStore) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	key := d.keys.ObjectKey(d.organization, documentID, kind)
	parts, _ := d.keys.ParseObjectKey(key)

	created, err := d.client.CreateFile(ctx, &drive.File{
		Name:     encodeSegment(documentID) + "-" + path.Base(key),
		Parents:  []string{d.folderID},
		MimeType: "application/pdf",
		AppProperties: map[string]string{
			drivePropOrganization: d.organization,
			drivePropDocument:     documentID,
			drivePropKind:         kind,
			drivePropCreated:      strconv.FormatInt(parts.CreatedAt.UnixNano(), 10),
		},
	}, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload to Drive: %w", err)
	}
	return fileURL(created), nil
}

// ResolveURL returns the link of the newest file for documentID.
func (d *DriveStore) ResolveURL(ctx context.Context, documentID string) (string, error) {
	obj, err := d.latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteDocument removes every file for documentID.
func (d *DriveStore) DeleteDocument(ctx context.Context, documentID string) error {
	objects, err := d.list(ctx, d.organization, documentID)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := d.client.DeleteFile(ctx, o.Key); err != nil && !isDriveNotFound(err) {
			return fmt.Errorf("failed to delete %s from Drive: %w", o.Key, err)
		}
	}
	return nil
}

// GetSize returns the size of the newest file for documentID.
func (d *DriveStore) GetSize(ctx context.Context, documentID string) (int64, error) {
	obj, err := d.latest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// ListDocuments lists every file of the organization in the folder.
func (d *DriveStore) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	return d.list(ctx, organizationID, "")
}

// Download reads a file given its link.
func (d *DriveStore) Download(ctx context.Context, objectURL string) ([]byte, error) {
	fileID, ok := driveFileID(objectURL)
	if !ok {
		return nil, ErrForeignURL
	}
	data, err := d.client.DownloadFile(ctx, fileID)
	if err != nil {
		if isDriveNotFound(err) {
			return nil, fmt.Errorf("%w: drive file %s", ErrObjectNotFound, fileID)
		}
		return nil, fmt.Errorf("failed to download from Drive: %w", err)
	}
	return data, nil
}

func (d *DriveStore) latest(ctx context.Context, documentID string) (ObjectInfo, error) {
	objects, err := d.list(ctx, d.organization, documentID)
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := newest(objects)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, documentID)
	}
	return obj, nil
}

func (d *DriveStore) list(ctx context.Context, organizationID, documentID string) ([]ObjectInfo, error) {
	q := d.query(organizationID, documentID)

	var out []ObjectInfo
	pageToken := ""
	for {
		page, err := d.client.ListFiles(ctx, q, pageToken)
		if err != nil {
			if isDriveNotFound(err) {
				return nil, fmt.Errorf("%w: drive folder %s", ErrObjectNotFound, d.folderID)
			}
			return nil, fmt.Errorf("failed to list Drive files: %w", err)
		}
		for _, f := range page.Files {
			out = append(out, driveObjectInfo(f))
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (d *DriveStore) query(organizationID, documentID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' in parents and trashed = false", escapeDriveQuery(d.folderID))
	fmt.Fprintf(&b, " and appProperties has { key='%s' and value='%s' }", drivePropOrganization, escapeDriveQuery(organizationID))
	if documentID != "" {
		fmt.Fprintf(&b, " and appProperties has { key='%s' and value='%s' }", drivePropDocument, escapeDriveQuery(documentID))
	}
	return b.String()
}

func driveObjectInfo(f *drive.File) ObjectInfo {
	info := ObjectInfo{
		DocumentID: f.AppProperties[drivePropDocument],
		Key:        f.Id,
		URL:        fileURL(f),
		Size:       f.Size,
	}
	if n, err := strconv.ParseInt(f.AppProperties[drivePropCreated], 10, 64); err == nil {
		info.CreatedAt = time.Unix(0, n).UTC()
	} else if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		info.CreatedAt = t.UTC()
	}
	return info
}

// fileURL prefers the direct download link.
func fileURL(f *drive.File) string {
	if f.WebContentLink != "" {
		return f.WebContentLink
	}
	if f.WebViewLink != "" {
		return f.WebViewLink
	}
	return "https://drive.google.com/file/d/" + f.Id + "/view"
}

// driveFileID extracts the file id from a webContentLink or webViewLink.
func driveFileID(objectURL string) (string, bool) {
	u, err := url.Parse(objectURL)
	if err != nil || (u.Host != "drive.google.com" && u.Host != "docs.google.com") {
		return "", false
	}
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "d" && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}

func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func isDriveNotFound(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}

var (
	_ Service    = (*DriveStore)(nil)
	_ Downloader = (*DriveStore)(nil)
)
