package resumable

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitrise-io/go-resumable/resumable/network"
)

// offsetResolver derives the progress of an upload from the parts the store holds.
// No offset is ever cached.
type offsetResolver struct {
	client network.ObjectStore
}

func (o offsetResolver) resolve(ctx context.Context, key, uploadID string) (int64, error) {
	parts, err := o.listParts(ctx, key, uploadID)
	if err != nil {
		return 0, err
	}
	return sumParts(parts), nil
}

// listParts returns the parts ordered by part number. An unknown upload is
// reported with both ErrStoreList and network.ErrUploadNotFound.
func (o offsetResolver) listParts(ctx context.Context, key, uploadID string) ([]network.Part, error) {
	parts, err := o.client.ListParts(ctx, key, uploadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreList, key, err)
	}
	return parts, nil
}

// completed tells a completed upload from a released one once the store no
// longer knows the upload: only completion leaves the data object behind.
func (o offsetResolver) completed(ctx context.Context, key string) (int64, error) {
	size, err := o.client.StatObject(ctx, key)
	if errors.Is(err, network.ErrObjectNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUploadReleased, key)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrStoreRead, key, err)
	}
	return size, nil
}

func sumParts(parts []network.Part) int64 {
	var total int64
	for _, part := range parts {
		total += part.Size
	}
	return total
}

func highestPartNumber(parts []network.Part) int32 {
	var highest int32
	for _, part := range parts {
		if part.Number > highest {
			highest = part.Number
		}
	}
	return highest
}
