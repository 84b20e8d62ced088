package internal

import (
	"io/fs"
	"os"
)

// OsProxy is the part of the os package used to find files to upload.
type OsProxy interface {
	Stat(name string) (os.FileInfo, error)
	DirFS(dir string) fs.FS
}

// RealOS delegates to the os package.
type RealOS struct{}

func (RealOS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) } //nolint:revive
func (RealOS) DirFS(dir string) fs.FS                { return os.DirFS(dir) } //nolint:revive
