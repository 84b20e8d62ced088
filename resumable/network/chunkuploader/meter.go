package chunkuploader

import (
	"io"
	"sync/atomic"
)

// ceilingReader fails with ErrCeilingExceeded as soon as the source yields more than ceiling bytes.
// It never asks the source for more than one byte past the ceiling, and the byte that
// crossed the ceiling is not passed on.
type ceilingReader struct {
	r       io.Reader
	ceiling int64
	read    int64
}

func (c *ceilingReader) Read(p []byte) (int, error) {
	if limit := c.ceiling - c.read + 1; int64(len(p)) > limit {
		p = p[:limit]
	}

	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.ceiling {
		excess := int(c.read - c.ceiling)
		c.read = c.ceiling
		return n - excess, ErrCeilingExceeded
	}
	return n, err
}

// countingReader counts the bytes passed downstream.
type countingReader struct {
	r     io.Reader
	total atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.total.Add(int64(n))
	return n, err
}

func (c *countingReader) Total() int64 {
	return c.total.Load()
}
