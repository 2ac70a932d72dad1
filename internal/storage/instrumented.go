package storage

import (
	"context"
	"errors"
)

// TransferRecorder receives one observation per provider call.
type TransferRecorder interface {
	RecordTransfer(provider, operation string, bytes int64, err error)
}

// instrumented reports every provider call to a TransferRecorder.
type instrumented struct {
	Service
	recorder TransferRecorder
}

func (i *instrumented) provider() string {
	return string(i.Service.Type())
}

func (i *instrumented) UploadDocument(ctx context.Context, data []byte, documentID, kind string) (string, error) {
	url, err := i.Service.UploadDocument(ctx, data, documentID, kind)
	i.recorder.RecordTransfer(i.provider(), "upload", int64(len(data)), err)
	return url, err
}

func (i *instrumented) ResolveURL(ctx context.Context, documentID string) (string, error) {
	url, err := i.Service.ResolveURL(ctx, documentID)
	i.recorder.RecordTransfer(i.provider(), "resolve", 0, err)
	return url, err
}

func (i *instrumented) DeleteDocument(ctx context.Context, documentID string) error {
	err := i.Service.DeleteDocument(ctx, documentID)
	i.recorder.RecordTransfer(i.provider(), "delete", 0, err)
	return err
}

func (i *instrumented) GetSize(ctx context.Context, documentID string) (int64, error) {
	size, err := i.Service.GetSize(ctx, documentID)
	i.recorder.RecordTransfer(i.provider(), "size", 0, err)
	return size, err
}

func (i *instrumented) ListDocuments(ctx context.Context, organizationID string) ([]ObjectInfo, error) {
	objects, err := i.Service.ListDocuments(ctx, organizationID)
	i.recorder.RecordTransfer(i.provider(), "list", 0, err)
	return objects, err
}

// Download forwards to the wrapped provider when it implements Downloader.
func (i *instrumented) Download(ctx context.Context, objectURL string) ([]byte, error) {
	d, ok := i.Service.(Downloader)
	if !ok {
		return nil, ErrForeignURL
	}
	data, err := d.Download(ctx, objectURL)
	if !errors.Is(err, ErrForeignURL) {
		i.recorder.RecordTransfer(i.provider(), "download", int64(len(data)), err)
	}
	return data, err
}

// Unwrap returns the wrapped provider.
func (i *instrumented) Unwrap() Service {
	return i.Service
}

var (
	_ Service    = (*instrumented)(nil)
	_ Downloader = (*instrumented)(nil)
)
