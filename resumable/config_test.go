package resumable

import (
	"testing"

	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (m mapEnv) Get(key string) string {
	return m[key]
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, int64(5*units.MiB), c.MinPartSize)
	assert.Equal(t, int64(6*units.MiB), c.MaxPartSize)
	assert.NoError(t, c.Validate())
	assert.Equal(t, int64(10000*6*units.MiB), c.MaxLength())
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envs    mapEnv
		want    Config
		wantErr bool
	}{
		{
			name: "defaults",
			envs: mapEnv{},
			want: DefaultConfig(),
		},
		{
			name: "human readable sizes",
			envs: mapEnv{"RESUMABLE_MIN_PART_SIZE": "8MiB", "RESUMABLE_MAX_PART_SIZE": "16m"},
			want: Config{MinPartSize: 8 * units.MiB, MaxPartSize: 16 * units.MiB},
		},
		{
			name:    "max below min",
			envs:    mapEnv{"RESUMABLE_MAX_PART_SIZE": "1MiB"},
			wantErr: true,
		},
		{
			name:    "invalid size",
			envs:    mapEnv{"RESUMABLE_MIN_PART_SIZE": "large"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfigFromEnv(tt.envs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{MinPartSize: 5, MaxPartSize: 10}},
		{name: "zero min", config: Config{MinPartSize: 0, MaxPartSize: 10}, wantErr: true},
		{name: "max equals min", config: Config{MinPartSize: 10, MaxPartSize: 10}, wantErr: true},
		{name: "max above the store limit", config: Config{MinPartSize: 5, MaxPartSize: MaxAllowedPartSize + 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
