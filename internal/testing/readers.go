package testing

import (
	"bytes"
	"io"
	"sync/atomic"
)

// Data returns n deterministic bytes.
func Data(n int64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i*31 + i/251) % 256)
	}
	return b
}

// NewDataReader returns a reader over Data(n).
func NewDataReader(n int64) *bytes.Reader {
	return bytes.NewReader(Data(n))
}

// ErrReader yields R and then fails with Err instead of io.EOF.
type ErrReader struct {
	R   io.Reader
	Err error
}

func (r *ErrReader) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	if err == io.EOF {
		return n, r.Err
	}
	return n, err
}

// CloseRecorder is an io.ReadCloser that remembers whether it was closed.
type CloseRecorder struct {
	io.Reader
	closed atomic.Bool
}

// NewCloseRecorder ...
func NewCloseRecorder(r io.Reader) *CloseRecorder {
	return &CloseRecorder{Reader: r}
}

// Close ...
func (c *CloseRecorder) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *CloseRecorder) Closed() bool {
	return c.closed.Load()
}
