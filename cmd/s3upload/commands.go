package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-resumable/resumable"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "s3upload",
		Short: "Resumable uploads to S3 compatible object stores",
		Long: `Resumable uploads to S3 compatible object stores.

The bucket is configured through the environment:
  S3UPLOAD_BUCKET, S3UPLOAD_REGION, S3UPLOAD_ENDPOINT, S3UPLOAD_USE_PATH_STYLE,
  AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
Part sizes can be tuned with RESUMABLE_MIN_PART_SIZE and RESUMABLE_MAX_PART_SIZE.

Examples:
  # Upload files matching a pattern
  s3upload upload --prefix builds/ 'out/**/*.ipa'

  # Send a file in several steps
  key=$(s3upload create --length 104857600 --meta filename=app.ipa)
  s3upload write "$key" app.ipa
  s3upload info "$key"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.logger.EnableDebugLog(a.verbose)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.writeMetrics()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Print debug logs")
	root.PersistentFlags().StringVar(&a.metricsTextfile, "metrics-textfile", "", "Write metrics in the Prometheus text format to this file")

	root.AddCommand(
		newCreateCmd(a),
		newInfoCmd(a),
		newWriteCmd(a),
		newUploadCmd(a),
		newFinishCmd(a),
		newAbortCmd(a),
	)
	return root
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		length   int64
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "create [key]",
		Short: "Create an upload session and print its key",
		Long:  "Create an upload session of --length bytes. A random key is generated when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := uuid.NewString()
			if len(args) == 1 {
				key = args[0]
			}

			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			info, err := store.Create(cmd.Context(), key, resumable.CreateParams{Length: length, Metadata: meta})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(a.out, info.Key)
			return err
		},
	}

	cmd.Flags().Int64Var(&length, "length", -1, "Total number of bytes of the upload")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "Metadata as key=value, can be repeated")
	_ = cmd.MarkFlagRequired("length")
	return cmd
}

type infoOutput struct {
	Key       string            `json:"key"`
	UploadID  string            `json:"uploadId"`
	Length    int64             `json:"length"`
	Offset    int64             `json:"offset"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	Finished  bool              `json:"finished"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <key>",
		Short: "Print the status of an upload session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			info, err := store.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(a.out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(infoOutput{
				Key:       info.Key,
				UploadID:  info.UploadID,
				Length:    info.Length,
				Offset:    info.Offset,
				Metadata:  info.Metadata,
				CreatedAt: info.CreatedAt,
				Finished:  info.Finished,
			})
		},
	}
}

func newWriteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <key> <source>",
		Short: "Send a file, URL or the standard input (-) to an upload session",
		Long: `Send a source to an upload session, continuing at the offset the store reports.

The source is read from the session's offset on, so the same complete file can be
passed again after an interruption.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, src := args[0], args[1]

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			written, err := a.writeWithRetry(cmd.Context(), store, key, src)
			if err != nil {
				return err
			}

			info, err := store.Info(cmd.Context(), key)
			if err != nil {
				return err
			}
			if info.Finished {
				a.logger.Donef("Upload %s finished (%s)", key, units.HumanSizeWithPrecision(float64(info.Length), 3))
			} else {
				a.logger.Printf("Sent %s, %s is at %d of %d bytes",
					units.HumanSizeWithPrecision(float64(written), 3), key, info.Offset, info.Length)
			}
			return nil
		},
	}
	addRetryFlags(cmd, a)
	return cmd
}

func newFinishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finish <key>",
		Short: "Complete an upload session that received all of its bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Finish(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Donef("Upload %s finished", args[0])
			return nil
		},
	}
}

func newAbortCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "abort <key>",
		Aliases: []string{"terminate"},
		Short:   "Abort an upload session and release its parts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Terminate(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Donef("Upload %s aborted", args[0])
			return nil
		},
	}
}

func addRetryFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().UintVar(&a.retries, "retries", defaultRetries, "Number of times a failed write is retried")
	cmd.Flags().DurationVar(&a.retryWait, "retry-wait", defaultRetryWait, "Wait between retries")
}

// parseMetadata parses key=value pairs. Values may contain "=".
func parseMetadata(pairs []string) (map[string]string, error) {
	metadata := map[string]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
