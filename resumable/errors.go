package resumable

import (
	"errors"
	"fmt"

	"github.com/bitrise-io/go-resumable/resumable/network/chunkuploader"
)

var (
	// ErrNotFound is returned when no session record exists for a key.
	ErrNotFound = errors.New("upload session not found")
	// ErrCorruptRecord is returned when a session record can not be decoded.
	ErrCorruptRecord = errors.New("corrupt session record")
	// ErrStoreRead is returned when reading from the object store fails.
	ErrStoreRead = errors.New("object store read failed")
	// ErrStoreWrite is returned when writing to the object store fails.
	ErrStoreWrite = errors.New("object store write failed")
	// ErrStoreList is returned when listing the parts of an upload fails.
	ErrStoreList = errors.New("listing parts failed")
	// ErrPartUpload is returned when the object store rejects a part.
	ErrPartUpload = chunkuploader.ErrPartUpload
	// ErrCeilingExceeded is returned when a write sends more bytes than the session has left.
	ErrCeilingExceeded = chunkuploader.ErrCeilingExceeded
	// ErrShortWrite is matched by *ShortWriteError.
	ErrShortWrite = errors.New("short write")
	// ErrSessionFinished is returned when writing to a session that was already finalized.
	ErrSessionFinished = errors.New("upload session is finished")
	// ErrUploadReleased is returned when the multipart upload of a session was aborted
	// outside of Terminate, for example by a bucket lifecycle rule. The session
	// can not be resumed and has to be terminated.
	ErrUploadReleased = errors.New("multipart upload was released before completion")
	// ErrIncomplete is returned when finishing a session that did not receive all of its bytes.
	ErrIncomplete = errors.New("upload session is incomplete")
)

// ShortWriteError is returned by Write when it ends with less than one valid part
// while the session is not complete. Bytes that were accepted stay accepted,
// the caller resends from the offset reported by Info.
type ShortWriteError struct {
	Accepted    int64
	Withheld    int64
	MinPartSize int64
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write: %d bytes accepted, %d bytes withheld below the minimum part size of %d bytes",
		e.Accepted, e.Withheld, e.MinPartSize)
}

// Is ...
func (e *ShortWriteError) Is(target error) bool {
	return target == ErrShortWrite
}
