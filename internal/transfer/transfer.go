// Package transfer moves complete document blobs between storage locations.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/storage"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// DefaultMaxDocumentSize caps a fetched document at 50 MiB.
const DefaultMaxDocumentSize int64 = 50 << 20

// Fetcher reads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches public document URLs over HTTP.
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewHTTPFetcher creates a fetcher with a per-request timeout and a size cap.
// Zero values fall back to DefaultTimeout and DefaultMaxDocumentSize.
func NewHTTPFetcher(timeout time.Duration, maxSize int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// Fetch downloads url in full.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %w", domain.ErrTransferFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s returned %d", storage.ErrObjectNotFound, url, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrTransferFailed, url, resp.StatusCode)
	}
	if resp.ContentLength > f.maxSize {
		return nil, domain.ErrDocumentTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %w", domain.ErrTransferFailed, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, domain.ErrDocumentTooLarge
	}
	return data, nil
}

// Fetch reads url from the first source that owns it, falling back to the
// HTTP fetcher when no source does.
func Fetch(ctx context.Context, fallback Fetcher, url string, sources ...storage.Service) ([]byte, error) {
	for _, src := range sources {
		d, ok := src.(storage.Downloader)
		if !ok {
			continue
		}
		data, err := d.Download(ctx, url)
		if errors.Is(err, storage.ErrForeignURL) {
			continue
		}
		return data, Classify(err)
	}
	if fallback == nil {
		return nil, fmt.Errorf("%w: no reader for %s", domain.ErrTransferFailed, url)
	}
	data, err := fallback.Fetch(ctx, url)
	return data, Classify(err)
}

// WithTimeout bounds ctx by d. A non-positive d uses DefaultTimeout.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Classify wraps a provider error into the transfer taxonomy. Missing objects
// stay SourceNotFound. Timeouts and every other provider failure become
// TransferFailed. Errors already in the taxonomy pass through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrTransferFailed),
		errors.Is(err, domain.ErrConfigurationMissing),
		errors.Is(err, domain.ErrChecksumMismatch),
		errors.Is(err, domain.ErrPersistenceFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %w", domain.ErrTransferFailed, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}
}
