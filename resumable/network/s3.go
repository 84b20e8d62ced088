package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/prometheus/client_golang/prometheus"
)

// The labels to use for observing request durations. One label per operation.
const (
	metricCreateMultipartUpload   = "create_multipart_upload"
	metricUploadPart              = "upload_part"
	metricListParts               = "list_parts"
	metricCompleteMultipartUpload = "complete_multipart_upload"
	metricAbortMultipartUpload    = "abort_multipart_upload"
	metricPutObject               = "put_object"
	metricGetObject               = "get_object"
	metricHeadObject              = "head_object"
	metricDeleteObject            = "delete_object"
)

// S3API is the part of *s3.Client used by S3Store.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements ObjectStore on top of an S3 bucket.
type S3Store struct {
	client S3API
	bucket string
	logger log.Logger

	requestDuration *prometheus.HistogramVec
}

// NewS3Store ...
func NewS3Store(client S3API, bucket string, logger log.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		logger: logger,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resumable",
				Subsystem: "s3",
				Name:      "request_duration_seconds",
				Help:      "Duration of requests sent to S3",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"operation"},
		),
	}
}

// RegisterMetrics ...
func (s *S3Store) RegisterMetrics(registry prometheus.Registerer) error {
	return registry.Register(s.requestDuration)
}

func (s *S3Store) observeRequestDuration(start time.Time, operation string) {
	s.requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CreateMultipartUpload ...
func (s *S3Store) CreateMultipartUpload(ctx context.Context, key string, metadata map[string]string) (string, error) {
	t := time.Now()
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	})
	s.observeRequestDuration(t, metricCreateMultipartUpload)
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	if out.UploadId == nil {
		return "", fmt.Errorf("create multipart upload: no upload id in response")
	}

	s.logger.Debugf("Created multipart upload %s for %s", *out.UploadId, key)
	return *out.UploadId, nil
}

// UploadPart ...
func (s *S3Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	t := time.Now()
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	s.observeRequestDuration(t, metricUploadPart)
	if err != nil {
		if isUploadNotFound(err) {
			return "", fmt.Errorf("upload part %d: %w", partNumber, ErrUploadNotFound)
		}
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}

	return aws.ToString(out.ETag), nil
}

// ListParts returns every part recorded for the upload, following pagination, ordered by part number.
func (s *S3Store) ListParts(ctx context.Context, key, uploadID string) ([]Part, error) {
	var parts []Part
	var partMarker *string
	for {
		t := time.Now()
		out, err := s.client.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(s.bucket),
			Key:              aws.String(key),
			UploadId:         aws.String(uploadID),
			PartNumberMarker: partMarker,
		})
		s.observeRequestDuration(t, metricListParts)
		if err != nil {
			// Completed and aborted uploads are reported as NoSuchUpload, some
			// S3 compatible stores answer with NoSuchKey instead.
			if isUploadNotFound(err) || isAwsError[*types.NoSuchKey](err) || isAwsErrorCode(err, "NoSuchKey") {
				return nil, ErrUploadNotFound
			}
			return nil, fmt.Errorf("list parts: %w", err)
		}

		for _, part := range out.Parts {
			parts = append(parts, Part{
				Number: aws.ToInt32(part.PartNumber),
				Size:   aws.ToInt64(part.Size),
				ETag:   aws.ToString(part.ETag),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		partMarker = out.NextPartNumberMarker
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number < parts[j].Number
	})

	return parts, nil
}

// CompleteMultipartUpload ...
func (s *S3Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completedParts := make([]types.CompletedPart, len(parts))
	for i, part := range parts {
		completedParts[i] = types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.Number),
		}
	}

	t := time.Now()
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	s.observeRequestDuration(t, metricCompleteMultipartUpload)
	if err != nil {
		switch {
		case isUploadNotFound(err):
			return fmt.Errorf("complete multipart upload: %w", ErrUploadNotFound)
		case isAwsErrorCode(err, "EntityTooSmall"):
			return fmt.Errorf("complete multipart upload: %w: %s", ErrEntityTooSmall, err)
		}
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	s.logger.Debugf("Completed multipart upload %s for %s with %d parts", uploadID, key, len(parts))
	return nil
}

// AbortMultipartUpload ...
func (s *S3Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	t := time.Now()
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	s.observeRequestDuration(t, metricAbortMultipartUpload)
	if err != nil {
		if isUploadNotFound(err) {
			return fmt.Errorf("abort multipart upload: %w", ErrUploadNotFound)
		}
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// PutObject ...
func (s *S3Store) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	t := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	s.observeRequestDuration(t, metricPutObject)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// GetObject ...
func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	t := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.observeRequestDuration(t, metricGetObject)
	if err != nil {
		if isAwsError[*types.NoSuchKey](err) || isAwsError[*types.NotFound](err) || isAwsErrorCode(err, "NoSuchKey") {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

// StatObject ...
func (s *S3Store) StatObject(ctx context.Context, key string) (int64, error) {
	t := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.observeRequestDuration(t, metricHeadObject)
	if err != nil {
		// HEAD responses carry no body, so a missing key surfaces as a bare NotFound.
		if isAwsError[*types.NotFound](err) || isAwsError[*types.NoSuchKey](err) || isAwsErrorCode(err, "NotFound") || isAwsErrorCode(err, "NoSuchKey") {
			return 0, ErrObjectNotFound
		}
		return 0, fmt.Errorf("head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// DeleteObject ...
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	t := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.observeRequestDuration(t, metricDeleteObject)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// The SDK does not always return types.NoSuchUpload, so the error code is checked as well.
func isUploadNotFound(err error) bool {
	return isAwsError[*types.NoSuchUpload](err) || isAwsErrorCode(err, "NoSuchUpload")
}

func isAwsError[T error](err error) bool {
	var awsErr T
	return errors.As(err, &awsErr)
}

func isAwsErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}
