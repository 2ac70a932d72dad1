package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/domain"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects call.
const maxDeleteBatch = 1000

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string

	// PublicBaseURL, when set, is used as the URL prefix of every object.
	PublicBaseURL string

	UsePathStyle bool
	KeyPrefix    string
}

// S3Store stores documents in an S3 compatible bucket.
// It backs both the primary object store and the s3 backup provider.
type S3Store struct {
	client       S3API
	storageType  domain.StorageType
	organization string
	opts         S3Options
	keys         KeyConfig
}

// NewS3StoreWithClient creates an S3Store around an existing client.
func NewS3StoreWithClient(client S3API, storageType domain.StorageType, organizationID string, opts S3Options) *S3Store {
	return &S3Store{
		client:       client,
		storageType:  storageType,
		organization: organizationID,
		opts:         opts,
		keys:         KeyConfig{Prefix: opts.KeyPrefix},
	}
}

// NewS3Client builds an S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// NewPrimaryObjectStore builds the S3 client for the primary store from process
// configuration. The returned store must be bound with For before use.
func NewPrimaryObjectStore(ctx context.Context, cfg config.PrimaryStorageConfig) (*S3Store, error) {
	opts := S3Options{
		Bucket:        cfg.Bucket,
		Region:        cfg.Region,
		Endpoint:      cfg.Endpoint,
		PublicBaseURL: cfg.PublicBaseURL,
		UsePathStyle:  cfg.UsePathStyle,
		KeyPrefix:     cfg.Prefix,
	}
	client, err := NewS3Client(ctx, opts, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return NewS3StoreWithClient(client, domain.StorageTypePrimary, "", opts), nil
}

// NewCloudBucketStore builds the s3 backup provider from backup credentials.
func NewCloudBucketStore(ctx context.Context, creds map[string]string, organizationID string) (*S3Store, error) {
	if err := ValidateS3Credentials(creds); err != nil {
		return nil, err
	}
	opts := S3Options{
		Bucket:        creds["bucket"],
		Region:        creds["region"],
		Endpoint:      creds["endpoint"],
		PublicBaseURL: creds["public_base_url"],
		UsePathStyle:  creds["use_path_style"] == "true",
		KeyPrefix:     creds["prefix"],
	}
	client, err := NewS3Client(ctx, opts, creds["access_key_id"], creds["secret_access_key"])
	if err != nil {
		return nil, err
	}
	return NewS3StoreWithClient(client, domain.StorageTypeS3, organizationID, opts), nil
}

// ValidateS3Credentials checks the keys required by the s3 backup provider.
func ValidateS3Credentials(creds map[string]string) error {
	return requireKeys(creds, "bucket", "region", "access_key_id", "secret_access_key")
}

// For returns a copy of the store bound to organizationID. The client is shared.
func (s *S3Store) For(organizationID string) *S3Store {
	c := *s
	c.organization = organizationID
	return &c
}

// Type returns the storage type of the store.
func (s *S3Store) Type() domain.StorageType {
	return s.storageType
}

// UploadDocument writes data under a new key and returns its URL.
func (s *S3Store) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	key := s.keys.ObjectKey(s.organization, documentID, kind)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return s.objectURL(key), nil
}

// ResolveURL returns the URL of the newest object for documentID.
func (s *S3Store) ResolveURL(ctx context.Context, documentID string) (string, error) {
	obj, err := s.latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteDocument removes every object for documentID in batches.
func (s *S3Store) DeleteDocument(ctx context.Context, documentID string) error {
	objects, err := s.list(ctx, s.keys.DocumentPrefix(s.organization, documentID))
	if err != nil {
		return err
	}

	for start := 0; start < len(objects); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(objects))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, o := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(o.Key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.opts.Bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete from S3: %w", err)
		}
		if out != nil && len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %s from S3: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// GetSize returns the size of the newest object for documentID.
func (s *S3Store) GetSize(ctx context.Context, documentID string) (int64, error) {
	obj, err := s.latest(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// ListDocuments lists every object of the organization.
func (s *S3Store) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	return s.list(ctx, s.keys.OrganizationPrefix(organizationID))
}

// Download reads an object produced by this store.
func (s *S3Store) Download(ctx context.Context, objectURL string) ([]byte, error) {
	key, ok := s.keyFromURL(objectURL)
	if !ok {
		return nil, ErrForeignURL
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object from S3: %w", err)
	}
	return data, nil
}

func (s *S3Store) latest(ctx context.Context, documentID string) (ObjectInfo, error) {
	objects, err := s.list(ctx, s.keys.DocumentPrefix(s.organization, documentID))
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := newest(objects)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, documentID)
	}
	return obj, nil
}

func (s *S3Store) list(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(prefix),
	})

	var out []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isAWSNotFound(err) {
				return nil, fmt.Errorf("%w: bucket %s", ErrObjectNotFound, s.opts.Bucket)
			}
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, s.objectInfo(obj))
		}
	}
	return out, nil
}

func (s *S3Store) objectInfo(obj types.Object) ObjectInfo {
	key := aws.ToString(obj.Key)
	info := ObjectInfo{
		Key:  key,
		URL:  s.objectURL(key),
		Size: aws.ToInt64(obj.Size),
	}
	if obj.LastModified != nil {
		info.CreatedAt = obj.LastModified.UTC()
	}
	if parts, ok := s.keys.ParseObjectKey(key); ok {
		info.DocumentID = parts.DocumentID
		info.CreatedAt = parts.CreatedAt
	}
	return info
}

// objectURL builds the URL of key. Public base URL first, then the endpoint,
// then the AWS virtual-host form.
func (s *S3Store) objectURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case s.opts.PublicBaseURL != "":
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + escaped
	case s.opts.Endpoint != "" && s.opts.UsePathStyle:
		return strings.TrimRight(s.opts.Endpoint, "/") + "/" + s.opts.Bucket + "/" + escaped
	case s.opts.Endpoint != "":
		u, err := url.Parse(s.opts.Endpoint)
		if err != nil || u.Host == "" {
			return strings.TrimRight(s.opts.Endpoint, "/") + "/" + s.opts.Bucket + "/" + escaped
		}
		return u.Scheme + "://" + s.opts.Bucket + "." + u.Host + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, escaped)
	}
}

// keyFromURL recovers the key from a URL built by objectURL.
func (s *S3Store) keyFromURL(objectURL string) (string, bool) {
	base := s.objectURL("")
	rest, ok := strings.CutPrefix(objectURL, base)
	if !ok || rest == "" {
		return "", false
	}
	key, err := url.PathUnescape(rest)
	if err != nil || !strings.HasPrefix(key, s.keys.Prefix+"contracts/") {
		return "", false
	}
	return key, true
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// isAWSNotFound checks whether an AWS error means the key or bucket is absent.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404", "NoSuchBucket":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// requireKeys reports the first missing or blank key.
func requireKeys(creds map[string]string, keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(creds[k]) == "" {
			return domain.NewDomainError(domain.ErrIncompleteCredentials, "missing required key", k)
		}
	}
	return nil
}

var (
	_ Service    = (*S3Store)(nil)
	_ Downloader = (*S3Store)(nil)
)
