package resumable

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStore_PutGet(t *testing.T) {
	// Given
	ctx := context.Background()
	client := network.NewMemoryStore(5)
	records := recordStore{client: client, logger: log.NewLogger()}
	createdAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	rec := record{
		UploadID:       "upload-1",
		UploadLength:   1024,
		UploadMetadata: map[string]string{"filename": "Menü.txt"},
		CreatedAt:      createdAt,
	}

	// When
	require.NoError(t, records.put(ctx, "key", rec))
	got, err := records.get(ctx, "key")

	// Then
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	obj, ok := client.Object("key.info")
	require.True(t, ok)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(obj.Data, &raw))
	assert.Equal(t, "upload-1", raw["uploadId"])
	assert.Equal(t, 1024.0, raw["uploadLength"])
	assert.Equal(t, map[string]interface{}{"filename": "Menü.txt"}, raw["uploadMetadata"])
	assert.Equal(t, "2024-05-01T12:30:00Z", raw["createdAt"])
}

func TestRecordStore_Get(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		want    record
	}{
		{
			name:    "not json",
			content: "not json",
			wantErr: ErrCorruptRecord,
		},
		{
			name:    "missing upload id",
			content: `{"uploadLength": 10}`,
			wantErr: ErrCorruptRecord,
		},
		{
			name:    "negative length",
			content: `{"uploadId": "id", "uploadLength": -1}`,
			wantErr: ErrCorruptRecord,
		},
		{
			name:    "missing metadata",
			content: `{"uploadId": "id", "uploadLength": 10}`,
			want:    record{UploadID: "id", UploadLength: 10, UploadMetadata: map[string]string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := network.NewMemoryStore(5)
			require.NoError(t, client.PutObject(ctx, "key.info", strings.NewReader(tt.content), int64(len(tt.content))))
			records := recordStore{client: client, logger: log.NewLogger()}

			got, err := records.get(ctx, "key")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordStore_Delete(t *testing.T) {
	ctx := context.Background()
	client := network.NewMemoryStore(5)
	records := recordStore{client: client, logger: log.NewLogger()}
	require.NoError(t, records.put(ctx, "key", record{UploadID: "id"}))

	require.NoError(t, records.delete(ctx, "key"))

	_, err := records.get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = client.GetObject(ctx, "key.info")
	assert.ErrorIs(t, err, network.ErrObjectNotFound)
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "uploads/a.bin.info", recordKey("uploads/a.bin"))
}

