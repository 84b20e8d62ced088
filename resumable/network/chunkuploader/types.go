// Package chunkuploader splits a byte stream into store-compliant parts and uploads them
// to a multipart upload one after the other.
package chunkuploader

import (
	"errors"

	"github.com/bitrise-io/go-resumable/resumable/network"
)

var (
	// ErrCeilingExceeded is returned when the source yields more bytes than the request's ceiling.
	ErrCeilingExceeded = errors.New("byte ceiling exceeded")
	// ErrPartUpload is returned when the store rejects a part upload.
	ErrPartUpload = errors.New("part upload failed")
)

// Request describes one write into an existing multipart upload.
type Request struct {
	Key      string
	UploadID string
	// StartPartNumber is the number given to the first part, following parts increment it by one.
	StartPartNumber int32
	// Ceiling is the number of bytes the source may yield at most.
	Ceiling int64
	// AcceptTail decides whether a last segment smaller than the minimum part size is uploaded.
	// counted is the total number of bytes read from the source, tail included.
	// A nil AcceptTail withholds every undersized tail.
	AcceptTail func(tail, counted int64) bool
}

// Result is the outcome of an upload. On failure it holds the parts accepted before the failure.
type Result struct {
	Parts []network.Part
	// Transferred is the number of bytes the store accepted.
	Transferred int64
	// Withheld is the size of an undersized tail that was read but not uploaded.
	Withheld int64
}

// segment is one buffered part or the error that ended the source.
type segment struct {
	buf  *[]byte
	data []byte
	last bool
	err  error
}
