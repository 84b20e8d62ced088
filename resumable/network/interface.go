package network

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned when a single object (e.g. a session record) does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUploadNotFound is returned when the multipart upload is unknown to the store,
	// either because it never existed or because it was completed or aborted.
	ErrUploadNotFound = errors.New("multipart upload not found")
	// ErrEntityTooSmall is returned on completion when a non-final part is below the store's minimum part size.
	ErrEntityTooSmall = errors.New("part is smaller than the minimum allowed size")
)

// Part is one part of a multipart upload as recorded by the store.
type Part struct {
	Number int32
	Size   int64
	ETag   string
}

// PartUploader ...
type PartUploader interface {
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error)
}

// ObjectStore is the subset of an object store's API the resumable uploads rely on.
// The bucket is bound when the implementation is constructed.
type ObjectStore interface {
	PartUploader

	CreateMultipartUpload(ctx context.Context, key string, metadata map[string]string) (string, error)
	ListParts(ctx context.Context, key, uploadID string) ([]Part, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	PutObject(ctx context.Context, key string, body io.Reader, size int64) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	// StatObject returns the size of a stored object, or ErrObjectNotFound.
	StatObject(ctx context.Context, key string) (int64, error)
	DeleteObject(ctx context.Context, key string) error
}
