package resumable

import (
	"context"
	"errors"
	"time"

	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-utils/v2/log"
)

// SessionInfo is the resolved status of an upload session.
type SessionInfo struct {
	Key      string
	UploadID string
	Length   int64
	// Offset is the number of bytes the store holds for the session.
	Offset int64
	// Metadata is returned exactly as given to Create.
	Metadata  map[string]string
	CreatedAt time.Time
	// Finished is set once the multipart upload was completed and the object exists.
	Finished bool
}

// WritePlan is everything a write needs to continue where the store left off.
type WritePlan struct {
	UploadID       string
	Offset         int64
	Length         int64
	NextPartNumber int32
	Finished       bool
}

type assembler struct {
	records recordStore
	offsets offsetResolver
	logger  log.Logger
}

type resolved struct {
	record   record
	parts    []network.Part
	finished bool
}

// resolve loads the record and then the parts of its upload. It either
// succeeds with both or fails.
func (a assembler) resolve(ctx context.Context, key string) (resolved, error) {
	rec, err := a.records.get(ctx, key)
	if err != nil {
		return resolved{}, err
	}

	parts, err := a.offsets.listParts(ctx, key, rec.UploadID)
	if err != nil {
		// The store forgets completed and aborted uploads alike, while the record stays.
		if !errors.Is(err, network.ErrUploadNotFound) {
			return resolved{}, err
		}
		if err := a.settled(ctx, key, rec); err != nil {
			return resolved{}, err
		}
		return resolved{record: rec, finished: true}, nil
	}

	for i, part := range parts {
		if part.Number != int32(i+1) {
			a.logger.Warnf("Parts of %s are not contiguous: part #%d is number %d", key, i+1, part.Number)
			break
		}
	}

	return resolved{record: rec, parts: parts}, nil
}

func (a assembler) settled(ctx context.Context, key string, rec record) error {
	size, err := a.offsets.completed(ctx, key)
	if err != nil {
		return err
	}
	if size != rec.UploadLength {
		a.logger.Warnf("Object %s holds %d bytes, its session declared %d", key, size, rec.UploadLength)
	}
	return nil
}

func (a assembler) describe(ctx context.Context, key string) (SessionInfo, error) {
	rec, err := a.records.get(ctx, key)
	if err != nil {
		return SessionInfo{}, err
	}

	info := SessionInfo{
		Key:       key,
		UploadID:  rec.UploadID,
		Length:    rec.UploadLength,
		Metadata:  rec.UploadMetadata,
		CreatedAt: rec.CreatedAt,
	}

	offset, err := a.offsets.resolve(ctx, key, rec.UploadID)
	switch {
	case errors.Is(err, network.ErrUploadNotFound):
		if err := a.settled(ctx, key, rec); err != nil {
			return SessionInfo{}, err
		}
		info.Offset = rec.UploadLength
		info.Finished = true
	case err != nil:
		return SessionInfo{}, err
	default:
		info.Offset = offset
	}

	return info, nil
}

func (a assembler) nextWritePlan(ctx context.Context, key string) (WritePlan, error) {
	r, err := a.resolve(ctx, key)
	if err != nil {
		return WritePlan{}, err
	}

	plan := WritePlan{
		UploadID:       r.record.UploadID,
		Offset:         sumParts(r.parts),
		Length:         r.record.UploadLength,
		NextPartNumber: highestPartNumber(r.parts) + 1,
		Finished:       r.finished,
	}
	if r.finished {
		plan.Offset = plan.Length
	}

	a.logger.Debugf("Write plan of %s: offset %d of %d, next part %d", key, plan.Offset, plan.Length, plan.NextPartNumber)
	return plan, nil
}
