package chunkuploader

import (
	"github.com/docker/go-units"
)

// MaxPartNumber is the highest part number S3 accepts for a multipart upload.
const MaxPartNumber = 10000

// Config holds configuration for the part uploader.
type Config struct {
	// MinPartSize is the smallest size the store accepts for a part that is not the last one.
	// Default: 5 MiB
	MinPartSize int64

	// MaxPartSize is the size of every part except the last one of a write.
	// Default: 6 MiB
	MaxPartSize int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MinPartSize: 5 * units.MiB,
		MaxPartSize: 6 * units.MiB,
	}
}
