package chunkuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Uploader streams a source into sequential part uploads.
// It is safe for concurrent use by writes to different uploads.
type Uploader struct {
	config Config
	store  network.PartUploader
	logger log.Logger
	stats  *Stats
	pool   sync.Pool
}

// New creates a new Uploader with the given configuration.
func New(config Config, store network.PartUploader, logger log.Logger) *Uploader {
	u := &Uploader{
		config: config,
		store:  store,
		logger: logger,
		stats:  NewStats(),
	}
	u.pool.New = func() any {
		buf := make([]byte, config.MaxPartSize)
		return &buf
	}
	return u
}

// Stats returns the upload statistics of every part uploaded by u.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// Upload reads src until it ends and uploads it as parts of req.UploadID, starting at
// req.StartPartNumber. Every part is MaxPartSize long except the last one.
// A part is only started after the previous one was accepted by the store.
//
// When the upload fails src is closed if it implements io.Closer, so that a pending
// read returns.
func (u *Uploader) Upload(ctx context.Context, src io.Reader, req Request) (Result, error) {
	if req.StartPartNumber < 1 {
		return Result{}, fmt.Errorf("invalid start part number: %d", req.StartPartNumber)
	}
	if req.Ceiling < 0 {
		return Result{}, fmt.Errorf("invalid byte ceiling: %d", req.Ceiling)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counter := &countingReader{r: &ceilingReader{r: src, ceiling: req.Ceiling}}
	segments := make(chan segment)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u.produce(ctx, counter, segments, func() bool {
			return counter.Total() == req.Ceiling
		})
	}()

	result, err := u.consume(ctx, segments, counter, req)
	if err != nil {
		cancel()
		if closer, ok := src.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	for seg := range segments {
		u.putBuffer(seg.buf)
	}
	wg.Wait()

	if err != nil {
		return result, err
	}

	result.Transferred = counter.Total() - result.Withheld
	u.logger.Debugf("Uploaded %d part(s) of %s (%s) [total=%s in %v, %s/s]", len(result.Parts), req.Key,
		units.HumanSizeWithPrecision(float64(result.Transferred), 3),
		units.HumanSizeWithPrecision(float64(u.stats.Bytes()), 3),
		u.stats.TotalDuration().Round(time.Millisecond),
		units.HumanSizeWithPrecision(u.stats.Throughput(), 3))

	return result, nil
}

// produce fills buffers of MaxPartSize from src and hands them over one at a time.
// A buffer that ends exactly at the ceiling is only handed over once src is known
// to end there, so a source sending too much never gets its last part committed.
func (u *Uploader) produce(ctx context.Context, src io.Reader, segments chan<- segment, atCeiling func() bool) {
	defer close(segments)

	for ctx.Err() == nil {
		buf := u.getBuffer()
		n, err := readFull(ctx, src, *buf)
		if err == nil && atCeiling() {
			var probe [1]byte
			if _, err = io.ReadFull(src, probe[:]); err == nil {
				err = ErrCeilingExceeded
			}
		}

		seg := segment{buf: buf, data: (*buf)[:n]}
		switch {
		case err == nil:
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			seg.last = true
		default:
			seg.err = err
		}

		if seg.last && n == 0 {
			u.putBuffer(buf)
			return
		}

		select {
		case segments <- seg:
		case <-ctx.Done():
			u.putBuffer(buf)
			return
		}

		if seg.last || seg.err != nil {
			return
		}
	}
}

// readFull is io.ReadFull that stops between reads once ctx is done, so a slow
// source that can not be closed holds up a failed upload for one read at most.
func readFull(ctx context.Context, src io.Reader, buf []byte) (int, error) {
	var n int
	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := src.Read(buf[n:])
		n += m
		switch {
		case n == len(buf):
			return n, nil
		case err == io.EOF && n > 0:
			return n, io.ErrUnexpectedEOF
		case err != nil:
			return n, err
		}
	}
	return n, nil
}

func (u *Uploader) consume(ctx context.Context, segments <-chan segment, counter *countingReader, req Request) (Result, error) {
	var result Result
	partNumber := req.StartPartNumber

	for {
		var seg segment
		var ok bool
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("upload cancelled: %w", ctx.Err())
		case seg, ok = <-segments:
		}
		if !ok {
			return result, nil
		}

		if seg.err != nil {
			u.putBuffer(seg.buf)
			if errors.Is(seg.err, ErrCeilingExceeded) {
				return result, fmt.Errorf("%w: more than %d bytes sent", ErrCeilingExceeded, req.Ceiling)
			}
			return result, fmt.Errorf("read source: %w", seg.err)
		}

		size := int64(len(seg.data))
		if seg.last && size < u.config.MinPartSize {
			if req.AcceptTail == nil || !req.AcceptTail(size, counter.Total()) {
				u.logger.Debugf("Withholding %d bytes tail of %s, below the minimum part size", size, req.Key)
				u.putBuffer(seg.buf)
				result.Withheld = size
				continue
			}
		}

		if partNumber > MaxPartNumber {
			u.putBuffer(seg.buf)
			return result, fmt.Errorf("%w: part number %d exceeds %d", ErrPartUpload, partNumber, MaxPartNumber)
		}

		part, err := u.uploadPart(ctx, req, partNumber, seg.data)
		u.putBuffer(seg.buf)
		if err != nil {
			return result, err
		}

		result.Parts = append(result.Parts, part)
		result.Transferred += part.Size
		partNumber++
	}
}

func (u *Uploader) uploadPart(ctx context.Context, req Request, partNumber int32, data []byte) (network.Part, error) {
	if err := ctx.Err(); err != nil {
		return network.Part{}, fmt.Errorf("%w: part %d: %w", ErrPartUpload, partNumber, err)
	}

	u.logger.Debugf("Uploading part %d of %s (%s) [finished=%d] [avg=%v]",
		partNumber, req.Key, units.HumanSizeWithPrecision(float64(len(data)), 3),
		u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

	start := time.Now()
	etag, err := u.store.UploadPart(ctx, req.Key, req.UploadID, partNumber, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		u.logger.Warnf("Part %d of %s failed: %v", partNumber, req.Key, err)
		return network.Part{}, fmt.Errorf("%w: part %d: %w", ErrPartUpload, partNumber, err)
	}

	took := time.Since(start)
	u.stats.Update(took, int64(len(data)))
	u.logger.Debugf("Part %d uploaded in %v, ETag: %s", partNumber, took.Round(time.Millisecond), etag)

	return network.Part{Number: partNumber, Size: int64(len(data)), ETag: etag}, nil
}

func (u *Uploader) getBuffer() *[]byte {
	buf := u.pool.Get().(*[]byte)
	*buf = (*buf)[:cap(*buf)]
	return buf
}

func (u *Uploader) putBuffer(buf *[]byte) {
	if buf != nil {
		u.pool.Put(buf)
	}
}
