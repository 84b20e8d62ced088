package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-resumable/internal"
	"github.com/bitrise-io/go-resumable/resumable"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

// uploadFile is a local file and the key it is stored under.
type uploadFile struct {
	path string
	key  string
	size int64
}

func newUploadCmd(a *app) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload local files, each as its own session",
		Long: `Upload local files, each as its own session.

Paths may contain "doublestar" patterns (such as 'out/**/*.ipa'). A file matched by a
pattern is stored under the prefix joined with its path relative to the pattern's base,
other files under the prefix joined with their name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := evaluatePaths(args, prefix, a.osProxy, a.logger)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files match %s", strings.Join(args, ", "))
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			for _, file := range files {
				if err := a.uploadFile(cmd.Context(), store, file); err != nil {
					return err
				}
			}

			a.logger.Donef("Uploaded %d file(s)", len(files))
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix of the object keys")
	addRetryFlags(cmd, a)
	return cmd
}

func (a *app) uploadFile(ctx context.Context, store *resumable.Store, file uploadFile) error {
	info, err := store.Create(ctx, file.key, resumable.CreateParams{
		Length:   file.size,
		Metadata: map[string]string{"filename": filepath.Base(file.path)},
	})
	if err != nil {
		return fmt.Errorf("create session for %s: %w", file.path, err)
	}
	a.logger.Printf("Uploading %s to %s (%s)", file.path, info.Key, units.HumanSizeWithPrecision(float64(file.size), 3))

	if _, err := a.writeWithRetry(ctx, store, info.Key, file.path); err != nil {
		a.logger.Warnf("Upload of %s stopped, continue it with: s3upload write %s %s", file.path, info.Key, file.path)
		return fmt.Errorf("upload %s: %w", file.path, err)
	}
	return nil
}

// evaluatePaths expands the patterns and keeps regular files only.
func evaluatePaths(paths []string, prefix string, osProxy internal.OsProxy, logger log.Logger) ([]uploadFile, error) {
	pathModifier := pathutil.NewPathModifier()

	var files []uploadFile
	add := func(pth, relKey string) {
		absPath, err := pathModifier.AbsPath(pth)
		if err != nil {
			logger.Warnf("Failed to parse path %s, error: %s", pth, err)
			return
		}

		stat, err := osProxy.Stat(absPath)
		if err != nil {
			logger.Warnf("Skipping %s: %s", pth, err)
			return
		}
		if !stat.Mode().IsRegular() {
			logger.Debugf("Skipping %s, not a regular file", pth)
			return
		}

		files = append(files, uploadFile{
			path: absPath,
			key:  prefix + relKey,
			size: stat.Size(),
		})
	}

	for _, pth := range paths {
		if !strings.Contains(pth, "*") {
			add(pth, filepath.Base(pth))
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(pth))
		absBase, err := pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(osProxy.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %s: %w", pth, err)
		}
		if len(matches) == 0 {
			logger.Warnf("No match for path pattern: %s", pth)
			continue
		}

		for _, match := range matches {
			add(filepath.Join(absBase, filepath.FromSlash(match)), path.Clean(match))
		}
	}

	return files, nil
}
