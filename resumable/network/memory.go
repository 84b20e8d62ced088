package network

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryUpload struct {
	key      string
	metadata map[string]string
	parts    map[int32][]byte
}

// MemoryObject is a stored object with its native metadata.
type MemoryObject struct {
	Data     []byte
	Metadata map[string]string
}

// MemoryStore is an in-process ObjectStore with S3's multipart rules.
// It is safe for concurrent use.
type MemoryStore struct {
	minPartSize int64

	mu      sync.Mutex
	objects map[string]MemoryObject
	uploads map[string]*memoryUpload
}

// NewMemoryStore creates an empty store. minPartSize is enforced for every
// non-final part when a multipart upload is completed.
func NewMemoryStore(minPartSize int64) *MemoryStore {
	return &MemoryStore{
		minPartSize: minPartSize,
		objects:     map[string]MemoryObject{},
		uploads:     map[string]*memoryUpload{},
	}
}

// CreateMultipartUpload ...
func (m *MemoryStore) CreateMultipartUpload(_ context.Context, key string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.uploads[id] = &memoryUpload{
		key:      key,
		metadata: copyMetadata(metadata),
		parts:    map[int32][]byte{},
	}
	return id, nil
}

// UploadPart ...
func (m *MemoryStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	if partNumber < 1 || partNumber > 10000 {
		return "", fmt.Errorf("invalid part number: %d", partNumber)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read part %d: %w", partNumber, err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("part %d: content length %d does not match body size %d", partNumber, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	upload, err := m.upload(key, uploadID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upload.parts[partNumber] = data

	return etagOf(data), nil
}

// ListParts ...
func (m *MemoryStore) ListParts(_ context.Context, key, uploadID string) ([]Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	upload, err := m.upload(key, uploadID)
	if err != nil {
		return nil, err
	}
	return upload.sortedParts(), nil
}

// CompleteMultipartUpload ...
func (m *MemoryStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	upload, err := m.upload(key, uploadID)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("complete multipart upload: at least one part is required")
	}

	var buf bytes.Buffer
	for i, part := range parts {
		if i > 0 && parts[i-1].Number >= part.Number {
			return fmt.Errorf("complete multipart upload: parts are not in ascending order")
		}
		data, ok := upload.parts[part.Number]
		if !ok || etagOf(data) != part.ETag {
			return fmt.Errorf("complete multipart upload: invalid part %d", part.Number)
		}
		if i < len(parts)-1 && int64(len(data)) < m.minPartSize {
			return fmt.Errorf("complete multipart upload: part %d: %w", part.Number, ErrEntityTooSmall)
		}
		buf.Write(data)
	}

	m.objects[key] = MemoryObject{Data: buf.Bytes(), Metadata: upload.metadata}
	delete(m.uploads, uploadID)
	return nil
}

// AbortMultipartUpload ...
func (m *MemoryStore) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.upload(key, uploadID); err != nil {
		return err
	}
	delete(m.uploads, uploadID)
	return nil
}

// PutObject ...
func (m *MemoryStore) PutObject(_ context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("put object: content length %d does not match body size %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: data}
	return nil
}

// GetObject ...
func (m *MemoryStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// StatObject ...
func (m *MemoryStore) StatObject(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return int64(len(obj.Data)), nil
}

// DeleteObject ...
func (m *MemoryStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns a stored object, including completed multipart uploads.
func (m *MemoryStore) Object(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// UploadMetadata returns the native metadata attached to an in-progress multipart upload.
func (m *MemoryStore) UploadMetadata(key, uploadID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	upload, err := m.upload(key, uploadID)
	if err != nil {
		return nil, err
	}
	return copyMetadata(upload.metadata), nil
}

func (m *MemoryStore) upload(key, uploadID string) (*memoryUpload, error) {
	upload, ok := m.uploads[uploadID]
	if !ok || upload.key != key {
		return nil, ErrUploadNotFound
	}
	return upload, nil
}

func (u *memoryUpload) sortedParts() []Part {
	parts := make([]Part, 0, len(u.parts))
	for number, data := range u.parts {
		parts = append(parts, Part{Number: number, Size: int64(len(data)), ETag: etagOf(data)})
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number < parts[j].Number
	})
	return parts
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	c := make(map[string]string, len(metadata))
	for k, v := range metadata {
		c[k] = v
	}
	return c
}
