package resumable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_storeMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     map[string]string
	}{
		{
			name: "empty",
			want: nil,
		},
		{
			name:     "printable ascii is kept",
			metadata: map[string]string{"filename": "report 2024.pdf", "note": "a\tb ~!"},
			want:     map[string]string{"filename": "report 2024.pdf", "note": "a\tb ~!"},
		},
		{
			name:     "every non printable character is replaced",
			metadata: map[string]string{"filename": "Menü.txt", "title": "日本", "line": "a\nb"},
			want:     map[string]string{"filename": "Men?.txt", "title": "??", "line": "a?b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storeMetadata(tt.metadata))
		})
	}
}

func Test_storeMetadata_KeepsInput(t *testing.T) {
	metadata := map[string]string{"filename": "Menü.txt"}

	_ = storeMetadata(metadata)

	assert.Equal(t, "Menü.txt", metadata["filename"])
}
