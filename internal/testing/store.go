package testing

import (
	"context"
	"io"
	"sync"

	"github.com/bitrise-io/go-resumable/resumable/network"
)

// FaultyStore wraps an ObjectStore and fails the operations with a configured error.
// It also records the parts passed to UploadPart and the number of ListParts calls.
type FaultyStore struct {
	network.ObjectStore

	CreateErr     error
	PutObjectErr  error
	GetObjectErr  error
	StatErr       error
	DeleteErr     error
	ListPartsErr  error
	CompleteErr   error
	AbortErr      error
	UploadPartErr func(partNumber int32) error

	mu            sync.Mutex
	uploadedParts []int32
	uploadedSizes []int64
	listCalls     int
	aborted       []string
}

// NewFaultyStore ...
func NewFaultyStore(store network.ObjectStore) *FaultyStore {
	return &FaultyStore{ObjectStore: store}
}

// CreateMultipartUpload ...
func (s *FaultyStore) CreateMultipartUpload(ctx context.Context, key string, metadata map[string]string) (string, error) {
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	return s.ObjectStore.CreateMultipartUpload(ctx, key, metadata)
}

// UploadPart ...
func (s *FaultyStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	s.mu.Lock()
	s.uploadedParts = append(s.uploadedParts, partNumber)
	s.uploadedSizes = append(s.uploadedSizes, size)
	s.mu.Unlock()

	if s.UploadPartErr != nil {
		if err := s.UploadPartErr(partNumber); err != nil {
			return "", err
		}
	}
	return s.ObjectStore.UploadPart(ctx, key, uploadID, partNumber, body, size)
}

// ListParts ...
func (s *FaultyStore) ListParts(ctx context.Context, key, uploadID string) ([]network.Part, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()

	if s.ListPartsErr != nil {
		return nil, s.ListPartsErr
	}
	return s.ObjectStore.ListParts(ctx, key, uploadID)
}

// CompleteMultipartUpload ...
func (s *FaultyStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []network.Part) error {
	if s.CompleteErr != nil {
		return s.CompleteErr
	}
	return s.ObjectStore.CompleteMultipartUpload(ctx, key, uploadID, parts)
}

// AbortMultipartUpload ...
func (s *FaultyStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	s.mu.Lock()
	s.aborted = append(s.aborted, uploadID)
	s.mu.Unlock()

	if s.AbortErr != nil {
		return s.AbortErr
	}
	return s.ObjectStore.AbortMultipartUpload(ctx, key, uploadID)
}

// PutObject ...
func (s *FaultyStore) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	if s.PutObjectErr != nil {
		return s.PutObjectErr
	}
	return s.ObjectStore.PutObject(ctx, key, body, size)
}

// GetObject ...
func (s *FaultyStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.GetObjectErr != nil {
		return nil, s.GetObjectErr
	}
	return s.ObjectStore.GetObject(ctx, key)
}

// StatObject ...
func (s *FaultyStore) StatObject(ctx context.Context, key string) (int64, error) {
	if s.StatErr != nil {
		return 0, s.StatErr
	}
	return s.ObjectStore.StatObject(ctx, key)
}

// DeleteObject ...
func (s *FaultyStore) DeleteObject(ctx context.Context, key string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.ObjectStore.DeleteObject(ctx, key)
}

// UploadedParts returns the part numbers of every UploadPart call, in call order.
func (s *FaultyStore) UploadedParts() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.uploadedParts...)
}

// UploadedSizes returns the declared size of every UploadPart call, in call order.
func (s *FaultyStore) UploadedSizes() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.uploadedSizes...)
}

// ListCalls returns the number of ListParts calls.
func (s *FaultyStore) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Aborted returns the upload IDs passed to AbortMultipartUpload.
func (s *FaultyStore) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}
