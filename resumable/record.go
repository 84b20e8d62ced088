package resumable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-utils/v2/log"
)

const recordSuffix = ".info"

// record is the durable description of a session, stored next to the data object.
type record struct {
	UploadID       string            `json:"uploadId"`
	UploadLength   int64             `json:"uploadLength"`
	UploadMetadata map[string]string `json:"uploadMetadata"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func recordKey(key string) string {
	return key + recordSuffix
}

type recordStore struct {
	client network.ObjectStore
	logger log.Logger
}

// put overwrites the record of key unconditionally.
func (r recordStore) put(ctx context.Context, key string, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	if err := r.client.PutObject(ctx, recordKey(key), bytes.NewReader(b), int64(len(b))); err != nil {
		return fmt.Errorf("%w: put session record of %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}

func (r recordStore) get(ctx context.Context, key string) (record, error) {
	body, err := r.client.GetObject(ctx, recordKey(key))
	if err != nil {
		if errors.Is(err, network.ErrObjectNotFound) {
			return record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return record{}, fmt.Errorf("%w: get session record of %s: %w", ErrStoreRead, key, err)
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			r.logger.Warnf("Failed to close session record of %s: %s", key, err)
		}
	}(body)

	b, err := io.ReadAll(body)
	if err != nil {
		return record{}, fmt.Errorf("%w: read session record of %s: %w", ErrStoreRead, key, err)
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return record{}, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, key, err)
	}
	if rec.UploadID == "" || rec.UploadLength < 0 {
		return record{}, fmt.Errorf("%w: %s: missing upload id or invalid length", ErrCorruptRecord, key)
	}
	if rec.UploadMetadata == nil {
		rec.UploadMetadata = map[string]string{}
	}

	return rec, nil
}

func (r recordStore) delete(ctx context.Context, key string) error {
	if err := r.client.DeleteObject(ctx, recordKey(key)); err != nil {
		return fmt.Errorf("%w: delete session record of %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}
