package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	mock.Mock
}

func (m *mockS3API) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3API) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *mockS3API) ListParts(ctx context.Context, params *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListPartsOutput)
	return out, args.Error(1)
}

func (m *mockS3API) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3API) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3API) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestS3Store_CreateMultipartUpload(t *testing.T) {
	// Given
	client := new(mockS3API)
	metadata := map[string]string{"filename": "Men?.txt"}
	client.On("CreateMultipartUpload", mock.Anything, mock.MatchedBy(func(in *s3.CreateMultipartUploadInput) bool {
		return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "key" && in.Metadata["filename"] == "Men?.txt"
	})).Return(&s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil)
	store := NewS3Store(client, "bucket", log.NewLogger())

	// When
	uploadID, err := store.CreateMultipartUpload(context.Background(), "key", metadata)

	// Then
	require.NoError(t, err)
	assert.Equal(t, "upload-1", uploadID)
	client.AssertExpectations(t)
}

func TestS3Store_UploadPart(t *testing.T) {
	// Given
	client := new(mockS3API)
	client.On("UploadPart", mock.Anything, mock.MatchedBy(func(in *s3.UploadPartInput) bool {
		return aws.ToString(in.UploadId) == "upload-1" &&
			aws.ToInt32(in.PartNumber) == 3 &&
			aws.ToInt64(in.ContentLength) == 4
	})).Return(&s3.UploadPartOutput{ETag: aws.String(`"etag-3"`)}, nil)
	store := NewS3Store(client, "bucket", log.NewLogger())

	// When
	etag, err := store.UploadPart(context.Background(), "key", "upload-1", 3, bytes.NewReader([]byte("data")), 4)

	// Then
	require.NoError(t, err)
	assert.Equal(t, `"etag-3"`, etag)
	client.AssertExpectations(t)
}

func TestS3Store_ListParts_Paginates(t *testing.T) {
	// Given
	client := new(mockS3API)
	client.On("ListParts", mock.Anything, mock.MatchedBy(func(in *s3.ListPartsInput) bool {
		return in.PartNumberMarker == nil
	})).Return(&s3.ListPartsOutput{
		Parts: []types.Part{
			{PartNumber: aws.Int32(2), Size: aws.Int64(6), ETag: aws.String("b")},
			{PartNumber: aws.Int32(1), Size: aws.Int64(6), ETag: aws.String("a")},
		},
		IsTruncated:          aws.Bool(true),
		NextPartNumberMarker: aws.String("2"),
	}, nil).Once()
	client.On("ListParts", mock.Anything, mock.MatchedBy(func(in *s3.ListPartsInput) bool {
		return aws.ToString(in.PartNumberMarker) == "2"
	})).Return(&s3.ListPartsOutput{
		Parts: []types.Part{
			{PartNumber: aws.Int32(3), Size: aws.Int64(2), ETag: aws.String("c")},
		},
		IsTruncated: aws.Bool(false),
	}, nil).Once()
	store := NewS3Store(client, "bucket", log.NewLogger())

	// When
	parts, err := store.ListParts(context.Background(), "key", "upload-1")

	// Then
	require.NoError(t, err)
	assert.Equal(t, []Part{
		{Number: 1, Size: 6, ETag: "a"},
		{Number: 2, Size: 6, ETag: "b"},
		{Number: 3, Size: 2, ETag: "c"},
	}, parts)
	client.AssertExpectations(t)
}

func TestS3Store_ListParts_Errors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantErr     error
		wantWrapped bool
	}{
		{
			name:    "typed no such upload",
			err:     &types.NoSuchUpload{},
			wantErr: ErrUploadNotFound,
		},
		{
			name:    "no such upload code",
			err:     apiError("NoSuchUpload"),
			wantErr: ErrUploadNotFound,
		},
		{
			name:    "no such key code",
			err:     apiError("NoSuchKey"),
			wantErr: ErrUploadNotFound,
		},
		{
			name:        "other error",
			err:         apiError("InternalError"),
			wantWrapped: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockS3API)
			client.On("ListParts", mock.Anything, mock.Anything).Return(nil, tt.err)
			store := NewS3Store(client, "bucket", log.NewLogger())

			_, err := store.ListParts(context.Background(), "key", "upload-1")

			require.Error(t, err)
			if tt.wantWrapped {
				assert.NotErrorIs(t, err, ErrUploadNotFound)
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestS3Store_CompleteMultipartUpload(t *testing.T) {
	// Given
	client := new(mockS3API)
	client.On("CompleteMultipartUpload", mock.Anything, mock.MatchedBy(func(in *s3.CompleteMultipartUploadInput) bool {
		parts := in.MultipartUpload.Parts
		return len(parts) == 2 &&
			aws.ToInt32(parts[0].PartNumber) == 1 && aws.ToString(parts[0].ETag) == "a" &&
			aws.ToInt32(parts[1].PartNumber) == 2 && aws.ToString(parts[1].ETag) == "b"
	})).Return(&s3.CompleteMultipartUploadOutput{}, nil)
	store := NewS3Store(client, "bucket", log.NewLogger())

	// When
	err := store.CompleteMultipartUpload(context.Background(), "key", "upload-1", []Part{
		{Number: 1, Size: 6, ETag: "a"},
		{Number: 2, Size: 1, ETag: "b"},
	})

	// Then
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestS3Store_CompleteMultipartUpload_EntityTooSmall(t *testing.T) {
	client := new(mockS3API)
	client.On("CompleteMultipartUpload", mock.Anything, mock.Anything).Return(nil, apiError("EntityTooSmall"))
	store := NewS3Store(client, "bucket", log.NewLogger())

	err := store.CompleteMultipartUpload(context.Background(), "key", "upload-1", []Part{{Number: 1, ETag: "a"}})

	assert.ErrorIs(t, err, ErrEntityTooSmall)
}

func TestS3Store_GetObject(t *testing.T) {
	tests := []struct {
		name    string
		out     *s3.GetObjectOutput
		err     error
		want    string
		wantErr error
	}{
		{
			name: "found",
			out:  &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString("{}"))},
			want: "{}",
		},
		{
			name:    "typed no such key",
			err:     &types.NoSuchKey{},
			wantErr: ErrObjectNotFound,
		},
		{
			name:    "not found",
			err:     &types.NotFound{},
			wantErr: ErrObjectNotFound,
		},
		{
			name:    "no such key code",
			err:     apiError("NoSuchKey"),
			wantErr: ErrObjectNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockS3API)
			client.On("GetObject", mock.Anything, mock.Anything).Return(tt.out, tt.err)
			store := NewS3Store(client, "bucket", log.NewLogger())

			body, err := store.GetObject(context.Background(), "key.info")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer body.Close()
			got, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestS3Store_StatObject(t *testing.T) {
	tests := []struct {
		name     string
		out      *s3.HeadObjectOutput
		err      error
		wantSize int64
		wantErr  error
	}{
		{
			name:     "existing object",
			out:      &s3.HeadObjectOutput{ContentLength: aws.Int64(11_000_000)},
			wantSize: 11_000_000,
		},
		{
			name:    "typed not found",
			err:     &types.NotFound{},
			wantErr: ErrObjectNotFound,
		},
		{
			name:    "bare not found code",
			err:     apiError("NotFound"),
			wantErr: ErrObjectNotFound,
		},
		{
			name: "access denied",
			err:  apiError("AccessDenied"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given
			client := new(mockS3API)
			client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
				return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "key"
			})).Return(tt.out, tt.err)
			store := NewS3Store(client, "bucket", log.NewLogger())

			// When
			size, err := store.StatObject(context.Background(), "key")

			// Then
			switch {
			case tt.err == nil:
				require.NoError(t, err)
				assert.Equal(t, tt.wantSize, size)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrObjectNotFound)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestS3Store_PutObject(t *testing.T) {
	// Given
	client := new(mockS3API)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "key.info" && aws.ToInt64(in.ContentLength) == 2
	})).Return(&s3.PutObjectOutput{}, nil)
	store := NewS3Store(client, "bucket", log.NewLogger())

	// When
	err := store.PutObject(context.Background(), "key.info", bytes.NewBufferString("{}"), 2)

	// Then
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestS3Store_AbortMultipartUpload_NotFound(t *testing.T) {
	client := new(mockS3API)
	client.On("AbortMultipartUpload", mock.Anything, mock.Anything).Return(nil, &types.NoSuchUpload{})
	store := NewS3Store(client, "bucket", log.NewLogger())

	err := store.AbortMultipartUpload(context.Background(), "key", "upload-1")

	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestS3Store_DeleteObject(t *testing.T) {
	deleteErr := errors.New("access denied")
	client := new(mockS3API)
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(nil, deleteErr)
	store := NewS3Store(client, "bucket", log.NewLogger())

	err := store.DeleteObject(context.Background(), "key.info")

	assert.ErrorIs(t, err, deleteErr)
}

func TestS3Store_RegisterMetrics(t *testing.T) {
	// Given
	client := new(mockS3API)
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)
	store := NewS3Store(client, "bucket", log.NewLogger())
	registry := prometheus.NewRegistry()

	// When
	require.NoError(t, store.RegisterMetrics(registry))
	require.NoError(t, store.DeleteObject(context.Background(), "key.info"))

	// Then
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "resumable_s3_request_duration_seconds", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, uint64(1), families[0].GetMetric()[0].GetHistogram().GetSampleCount())

	assert.Error(t, store.RegisterMetrics(registry))
}
