package testing

import (
	"fmt"
	"os"
	"strings"
)

// FileChecker allows chaining multiple checks on a file path.
type FileChecker struct {
	Path   string
	Checks []func(string) error
}

// NewFileChecker creates a FileChecker for the given path.
func NewFileChecker(path string) *FileChecker {
	return &FileChecker{Path: path, Checks: []func(string) error{}}
}

// Check runs all checks on the path and returns every failure.
func (fc *FileChecker) Check() error {
	errs := MultiError{}
	for _, check := range fc.Checks {
		AppendErr(&errs, check(fc.Path))
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsFile adds a check that the path is a regular file.
func (fc *FileChecker) IsFile() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("lstat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("expected regular file: %s", path)
		}
		return nil
	})
	return fc
}

// Content adds a check that the file has exactly the given content.
func (fc *FileChecker) Content(want []byte) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		got, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if string(got) != string(want) {
			return fmt.Errorf("file %s content mismatch: want %d bytes, got %d bytes", path, len(want), len(got))
		}
		return nil
	})
	return fc
}

// Contains adds a check that the file contains every given line.
func (fc *FileChecker) Contains(lines ...string) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		errs := MultiError{}
		for _, line := range lines {
			if !strings.Contains(string(b), line) {
				AppendErr(&errs, fmt.Errorf("file %s does not contain %q", path, line))
			}
		}
		if len(errs) == 0 {
			return nil
		}
		return errs
	})
	return fc
}
