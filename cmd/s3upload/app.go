package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitrise-io/go-resumable/config"
	"github.com/bitrise-io/go-resumable/internal"
	"github.com/bitrise-io/go-resumable/resumable"
	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultRetries   = 3
	defaultRetryWait = 5 * time.Second
)

type app struct {
	logger   log.Logger
	out      io.Writer
	envRepo  config.EnvGetter
	sources  SourceProvider
	osProxy  internal.OsProxy
	registry *prometheus.Registry

	// openClient connects to the object store, S3 unless replaced in tests.
	openClient func(ctx context.Context) (network.ObjectStore, error)

	verbose         bool
	metricsTextfile string
	retries         uint
	retryWait       time.Duration
}

func newApp(logger log.Logger, out io.Writer, stdin io.Reader, envRepo config.EnvGetter) *app {
	a := &app{
		logger:   logger,
		out:      out,
		envRepo:  envRepo,
		osProxy:  internal.RealOS{},
		registry: prometheus.NewRegistry(),
		sources: NewSourceProvider(
			filedownloader.NewDownloader(logger),
			fileutil.NewFileManager(),
			pathutil.NewPathModifier(),
			stdin,
		),
		retries:   defaultRetries,
		retryWait: defaultRetryWait,
	}
	a.openClient = a.openS3Client
	return a
}

func (a *app) openS3Client(ctx context.Context) (network.ObjectStore, error) {
	s, err := loadSettings(a.envRepo)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		config.Print(s)
	}

	client, err := network.NewS3StoreFromParams(ctx, s.s3Params(), a.logger)
	if err != nil {
		return nil, err
	}
	if err := client.RegisterMetrics(a.registry); err != nil {
		return nil, fmt.Errorf("register s3 metrics: %w", err)
	}
	return client, nil
}

func (a *app) openStore(ctx context.Context) (*resumable.Store, error) {
	cfg, err := resumable.ConfigFromEnv(a.envRepo)
	if err != nil {
		return nil, err
	}

	client, err := a.openClient(ctx)
	if err != nil {
		return nil, err
	}

	store, err := resumable.NewStore(client, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := store.RegisterMetrics(a.registry); err != nil {
		return nil, fmt.Errorf("register session metrics: %w", err)
	}
	return store, nil
}

func (a *app) writeMetrics() error {
	if a.metricsTextfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsTextfile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debugf("Metrics written to %s", a.metricsTextfile)
	return nil
}

// writeWithRetry sends src to the session of key. Every attempt asks the store for
// the current offset and sends the source from there, so an attempt that failed
// halfway is continued rather than repeated.
func (a *app) writeWithRetry(ctx context.Context, store *resumable.Store, key, src string) (int64, error) {
	var written int64
	err := retry.Times(a.retries).Wait(a.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			a.logger.Warnf("%d attempt failed, retrying write to %s...", attempt, key)
		}

		info, err := store.Info(ctx, key)
		if err != nil {
			return err, isPermanent(err)
		}
		if info.Finished {
			return nil, true
		}

		r, err := a.sources.OpenAt(ctx, src, info.Offset)
		if err != nil {
			return err, true
		}
		defer func(r io.ReadCloser) {
			if err := r.Close(); err != nil {
				a.logger.Warnf("Failed to close %s: %s", src, err)
			}
		}(r)

		a.logger.Debugf("Sending %s to %s from offset %d of %d", src, key, info.Offset, info.Length)
		n, err := store.Write(ctx, key, r)
		written += n
		if err != nil {
			// The standard input can not be read again.
			return err, src == stdinSource || isPermanent(err)
		}
		return nil, true
	})

	a.logger.Debugf("Sent %s to %s", units.HumanSizeWithPrecision(float64(written), 3), key)
	return written, err
}

// isPermanent reports whether sending the same source again can not help.
func isPermanent(err error) bool {
	var shortErr *resumable.ShortWriteError
	if errors.As(err, &shortErr) {
		return shortErr.Accepted == 0
	}

	for _, target := range []error{
		resumable.ErrNotFound,
		resumable.ErrCorruptRecord,
		resumable.ErrCeilingExceeded,
		resumable.ErrSessionFinished,
		resumable.ErrUploadReleased,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
