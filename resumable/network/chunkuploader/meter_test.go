package chunkuploader

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ceilingReader(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		ceiling int64
		want    string
		wantErr error
	}{
		{
			name:    "below the ceiling",
			data:    "abc",
			ceiling: 5,
			want:    "abc",
		},
		{
			name:    "at the ceiling",
			data:    "abcde",
			ceiling: 5,
			want:    "abcde",
		},
		{
			name:    "above the ceiling",
			data:    "abcdefgh",
			ceiling: 5,
			want:    "abcde",
			wantErr: ErrCeilingExceeded,
		},
		{
			name:    "zero ceiling",
			data:    "a",
			ceiling: 0,
			want:    "",
			wantErr: ErrCeilingExceeded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ceilingReader{r: bytes.NewBufferString(tt.data), ceiling: tt.ceiling}

			got, err := io.ReadAll(r)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func Test_countingReader(t *testing.T) {
	r := &countingReader{r: &ceilingReader{r: bytes.NewBufferString("abcdefgh"), ceiling: 6}}

	_, err := io.ReadAll(r)

	require.ErrorIs(t, err, ErrCeilingExceeded)
	assert.Equal(t, int64(6), r.Total())
}
