package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

const (
	fileScheme  = "file://"
	stdinSource = "-"
)

// SourceProvider opens the bytes a write sends, positioned at a given offset.
//
// A source is one of:
//   - "-" for the standard input,
//   - an http:// or https:// URL, fetched with retries,
//   - a local path, optionally with the file:// scheme.
type SourceProvider interface {
	OpenAt(ctx context.Context, src string, offset int64) (io.ReadCloser, error)
}

type sourceProvider struct {
	downloader   filedownloader.Downloader
	fileManager  fileutil.FileManager
	pathModifier pathutil.PathModifier
	stdin        io.Reader
}

// NewSourceProvider ...
func NewSourceProvider(downloader filedownloader.Downloader, fileManager fileutil.FileManager, pathModifier pathutil.PathModifier, stdin io.Reader) SourceProvider {
	return &sourceProvider{
		downloader:   downloader,
		fileManager:  fileManager,
		pathModifier: pathModifier,
		stdin:        stdin,
	}
}

// OpenAt skips the first offset bytes of src. Local files are seeked, other
// sources are read and discarded up to offset.
func (p *sourceProvider) OpenAt(ctx context.Context, src string, offset int64) (io.ReadCloser, error) {
	switch {
	case src == stdinSource:
		return skip(p.stdinReader(), offset)
	case isRemote(src):
		body, err := p.downloader.Get(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", src, err)
		}
		return skip(body, offset)
	}

	pth, err := p.localPath(src)
	if err != nil {
		return nil, err
	}

	file, err := p.fileManager.Open(pth)
	if err != nil {
		return nil, err
	}
	if seeker, ok := io.ReadCloser(file).(io.Seeker); ok {
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to seek %s to %d: %w", pth, offset, err)
		}
		return file, nil
	}
	return skip(file, offset)
}

// stdinReader keeps the closer of the standard input, so a failed write can
// unblock a pending read by closing it.
func (p *sourceProvider) stdinReader() io.ReadCloser {
	if rc, ok := p.stdin.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(p.stdin)
}

// localPath removes the file:// prefix from the path and returns the absolute path.
func (p *sourceProvider) localPath(src string) (string, error) {
	return p.pathModifier.AbsPath(strings.TrimPrefix(src, fileScheme))
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func skip(r io.ReadCloser, offset int64) (io.ReadCloser, error) {
	if offset == 0 {
		return r, nil
	}
	if _, err := io.CopyN(io.Discard, r, offset); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to skip to offset %d: %w", offset, err)
	}
	return r, nil
}
