package resumable

import (
	"fmt"

	"github.com/bitrise-io/go-resumable/config"
	"github.com/bitrise-io/go-resumable/resumable/network/chunkuploader"
	"github.com/docker/go-units"
)

// MaxAllowedPartSize is the largest part S3 accepts.
const MaxAllowedPartSize = 5 * units.GiB

// Config holds the part sizes used to split writes.
type Config struct {
	// MinPartSize must match the object store's own minimum part size.
	MinPartSize int64 `env:"RESUMABLE_MIN_PART_SIZE,size"`
	MaxPartSize int64 `env:"RESUMABLE_MAX_PART_SIZE,size"`
}

// DefaultConfig returns 5 MiB minimum and 6 MiB maximum part sizes.
func DefaultConfig() Config {
	c := chunkuploader.DefaultConfig()
	return Config{
		MinPartSize: c.MinPartSize,
		MaxPartSize: c.MaxPartSize,
	}
}

// ConfigFromEnv returns the default config overridden by the RESUMABLE_* environment variables.
func ConfigFromEnv(envGetter config.EnvGetter) (Config, error) {
	c := DefaultConfig()
	if err := config.NewInputParser(envGetter).Parse(&c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate ...
func (c Config) Validate() error {
	if c.MinPartSize <= 0 {
		return fmt.Errorf("min part size must be positive, got %d", c.MinPartSize)
	}
	if c.MaxPartSize <= c.MinPartSize {
		return fmt.Errorf("max part size (%d) must exceed min part size (%d)", c.MaxPartSize, c.MinPartSize)
	}
	if c.MaxPartSize > MaxAllowedPartSize {
		return fmt.Errorf("max part size (%d) must not exceed %s", c.MaxPartSize, units.BytesSize(float64(MaxAllowedPartSize)))
	}
	return nil
}

// MaxLength is the largest upload length that fits in the store's part limit.
func (c Config) MaxLength() int64 {
	return chunkuploader.MaxPartNumber * c.MaxPartSize
}

func (c Config) chunkuploaderConfig() chunkuploader.Config {
	return chunkuploader.Config{
		MinPartSize: c.MinPartSize,
		MaxPartSize: c.MaxPartSize,
	}
}
