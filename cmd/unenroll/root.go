package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/unenroll/internal/config"
	"github.com/JonMunkholm/unenroll/internal/logging"
	"github.com/JonMunkholm/unenroll/internal/source"
	"github.com/JonMunkholm/unenroll/internal/store"
	"github.com/JonMunkholm/unenroll/internal/unenroll"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	csvPath    string
	reportPath string
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:           "unenroll",
		Short:         "Unenroll users from courses listed in a CSV file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			logger.Debug("configuration loaded", "config", cfg.String())

			if opts.reportPath == "" {
				opts.reportPath = cfg.Run.ReportPath
			}

			_, err = run(cmd.Context(), cfg, opts, logger)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.csvPath, "csv_path", "p", "", "Path to the CSV file (default: stored configuration)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write a per-row outcome CSV to this path")

	return cmd
}

// run executes one batch against the configured backend.
func run(ctx context.Context, cfg *config.Config, opts runOptions, base *slog.Logger) (*unenroll.Result, error) {
	ctx = logging.WithRunID(ctx, uuid.NewString())
	logger := logging.FromContext(ctx, base)

	backend, err := store.Open(ctx, cfg.Database, base)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	opener := source.Select(opts.csvPath, backend, logger)
	rc, err := opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	logger.Info("reading input", "source", opener.String())

	pipelineOpts := unenroll.Options{
		MutationTimeout: cfg.Run.MutationTimeout,
		MaxInputBytes:   cfg.Run.MaxFileSize,
	}

	if opts.reportPath != "" {
		f, err := os.Create(opts.reportPath)
		if err != nil {
			return nil, fmt.Errorf("create report: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn("closing report failed", "path", opts.reportPath, "error", err)
			}
		}()
		pipelineOpts.Sink = unenroll.NewCSVReport(f)
	}

	res, err := unenroll.NewPipeline(backend, backend, base, pipelineOpts).Run(ctx, rc)
	if err != nil {
		if errors.Is(err, unenroll.ErrInputUnavailable) {
			return nil, fmt.Errorf("reading %s: %w", opener, err)
		}
		return nil, err
	}
	return res, nil
}
