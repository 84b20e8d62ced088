// Package resumable stores resumable uploads as S3 style multipart uploads.
//
// A session is identified by a caller chosen key. Its declared length and metadata
// live in a small JSON record stored at key + ".info", while its progress is always
// derived from the parts the object store holds. A write may therefore be retried
// by any process: it continues at the offset and part number the store reports.
//
// At most one write per key may run at a time. Writes to different keys may run
// concurrently.
package resumable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-resumable/resumable/network/chunkuploader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
)

// CreateParams ...
type CreateParams struct {
	Length   int64
	Metadata map[string]string
}

// Store ...
type Store struct {
	client   network.ObjectStore
	config   Config
	logger   log.Logger
	records  recordStore
	info     assembler
	uploader *chunkuploader.Uploader
	metrics  metrics
}

// NewStore validates cfg and creates a Store on top of client.
func NewStore(client network.ObjectStore, cfg Config, logger log.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	records := recordStore{client: client, logger: logger}
	return &Store{
		client:  client,
		config:  cfg,
		logger:  logger,
		records: records,
		info: assembler{
			records: records,
			offsets: offsetResolver{client: client},
			logger:  logger,
		},
		uploader: chunkuploader.New(cfg.chunkuploaderConfig(), client, logger),
		metrics:  newMetrics(),
	}, nil
}

// RegisterMetrics ...
func (s *Store) RegisterMetrics(registry prometheus.Registerer) error {
	for _, c := range s.metrics.collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Create starts a multipart upload for key and stores the session record.
// It does not check whether key is already in use.
func (s *Store) Create(ctx context.Context, key string, params CreateParams) (SessionInfo, error) {
	if strings.TrimSpace(key) == "" {
		return SessionInfo{}, fmt.Errorf("key must not be empty")
	}
	if params.Length < 0 {
		return SessionInfo{}, fmt.Errorf("upload length must not be negative, got %d", params.Length)
	}
	if maxLength := s.config.MaxLength(); params.Length > maxLength {
		return SessionInfo{}, fmt.Errorf("upload length %d exceeds the maximum of %d", params.Length, maxLength)
	}

	metadata := copyMetadata(params.Metadata)

	uploadID, err := s.client.CreateMultipartUpload(ctx, key, storeMetadata(metadata))
	if err != nil {
		return SessionInfo{}, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	rec := record{
		UploadID:       uploadID,
		UploadLength:   params.Length,
		UploadMetadata: metadata,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := s.records.put(ctx, key, rec); err != nil {
		if abortErr := s.client.AbortMultipartUpload(ctx, key, uploadID); abortErr != nil {
			s.logger.Warnf("Failed to abort multipart upload %s of %s: %s", uploadID, key, abortErr)
		}
		return SessionInfo{}, err
	}

	s.metrics.sessionsCreated.Inc()
	s.logger.Infof("Created upload session %s (%s)", key, units.HumanSizeWithPrecision(float64(params.Length), 3))

	return SessionInfo{
		Key:       key,
		UploadID:  uploadID,
		Length:    params.Length,
		Metadata:  metadata,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Info returns the status of the session. The offset is read from the store on every call.
func (s *Store) Info(ctx context.Context, key string) (SessionInfo, error) {
	return s.info.describe(ctx, key)
}

// Write appends src to the session, starting at the offset the store reports, and
// returns the number of bytes the store accepted.
//
// Once the session reaches its declared length the multipart upload is completed.
// A write that ends below the minimum part size without completing the session
// fails with a *ShortWriteError; bytes that were withheld must be sent again.
// Sending more bytes than the session has left fails with ErrCeilingExceeded.
func (s *Store) Write(ctx context.Context, key string, src io.Reader) (int64, error) {
	plan, err := s.info.nextWritePlan(ctx, key)
	if err != nil {
		s.metrics.logWrite(outcomeError, 0, 0)
		return 0, err
	}
	if plan.Finished {
		s.metrics.logWrite(outcomeError, 0, 0)
		return 0, fmt.Errorf("%w: %s", ErrSessionFinished, key)
	}

	result, err := s.uploader.Upload(ctx, src, chunkuploader.Request{
		Key:             key,
		UploadID:        plan.UploadID,
		StartPartNumber: plan.NextPartNumber,
		Ceiling:         plan.Length - plan.Offset,
		AcceptTail: func(_, counted int64) bool {
			return plan.Offset+counted == plan.Length
		},
	})
	if err != nil {
		outcome := outcomeError
		if errors.Is(err, ErrCeilingExceeded) {
			outcome = outcomeCeilingExceeded
		}
		s.metrics.logWrite(outcome, result.Transferred, len(result.Parts))
		return result.Transferred, err
	}

	offset := plan.Offset + result.Transferred
	switch {
	case offset == plan.Length:
		if err := s.complete(ctx, key, plan.UploadID); err != nil {
			s.metrics.logWrite(outcomeError, result.Transferred, len(result.Parts))
			return result.Transferred, err
		}
		s.metrics.logWrite(outcomeComplete, result.Transferred, len(result.Parts))
	case result.Withheld > 0 || result.Transferred < s.config.MinPartSize:
		s.metrics.logWrite(outcomeShort, result.Transferred, len(result.Parts))
		s.logger.Warnf("Short write to %s: %d bytes accepted, %d bytes withheld, offset %d of %d",
			key, result.Transferred, result.Withheld, offset, plan.Length)
		return result.Transferred, &ShortWriteError{
			Accepted:    result.Transferred,
			Withheld:    result.Withheld,
			MinPartSize: s.config.MinPartSize,
		}
	default:
		s.metrics.logWrite(outcomeOpen, result.Transferred, len(result.Parts))
		s.logger.Debugf("Session %s is at %d of %d bytes", key, offset, plan.Length)
	}

	return result.Transferred, nil
}

// Finish completes the multipart upload of a session that received all of its bytes.
// Finishing a finished session is a no-op.
func (s *Store) Finish(ctx context.Context, key string) error {
	plan, err := s.info.nextWritePlan(ctx, key)
	if err != nil {
		return err
	}
	if plan.Finished {
		return nil
	}
	if plan.Offset != plan.Length {
		return fmt.Errorf("%w: %s is at %d of %d bytes", ErrIncomplete, key, plan.Offset, plan.Length)
	}
	return s.complete(ctx, key, plan.UploadID)
}

// complete lists the parts again so the ETags come from the store. S3 refuses to
// complete an upload without parts, so an empty session gets one empty part.
func (s *Store) complete(ctx context.Context, key, uploadID string) error {
	parts, err := s.info.offsets.listParts(ctx, key, uploadID)
	if err != nil {
		return err
	}

	if len(parts) == 0 {
		etag, err := s.client.UploadPart(ctx, key, uploadID, 1, strings.NewReader(""), 0)
		if err != nil {
			return fmt.Errorf("%w: empty part: %w", ErrPartUpload, err)
		}
		parts = []network.Part{{Number: 1, Size: 0, ETag: etag}}
	}

	if err := s.client.CompleteMultipartUpload(ctx, key, uploadID, parts); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	s.metrics.sessionsFinished.Inc()
	s.logger.Infof("Finished upload session %s with %d part(s)", key, len(parts))
	return nil
}

// Terminate aborts the multipart upload of the session and deletes its record.
// Parts already uploaded are released by the store.
func (s *Store) Terminate(ctx context.Context, key string) error {
	rec, err := s.records.get(ctx, key)
	if err != nil {
		return err
	}

	if err := s.client.AbortMultipartUpload(ctx, key, rec.UploadID); err != nil && !errors.Is(err, network.ErrUploadNotFound) {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if err := s.records.delete(ctx, key); err != nil {
		return err
	}

	s.metrics.sessionsTerminated.Inc()
	s.logger.Infof("Terminated upload session %s", key)
	return nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	c := make(map[string]string, len(metadata))
	for k, v := range metadata {
		c[k] = v
	}
	return c
}
