// Package source locates the CSV input of a run: a local file when a path is
// given, otherwise the blob attached to the newest stored configuration.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/unenroll/internal/unenroll"
)

// ErrNoConfiguration is returned by a ConfigurationStore with no rows.
var ErrNoConfiguration = errors.New("no bulk unenroll configuration")

// Opener yields the CSV stream of one run.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// Configuration is one stored bulk unenroll configuration row.
type Configuration struct {
	ID         int64
	ChangeDate time.Time
	Enabled    bool
	CSVFile    []byte
}

// ConfigurationStore returns the newest configuration by change date.
type ConfigurationStore interface {
	CurrentConfiguration(ctx context.Context) (Configuration, error)
}

// Select returns a LocalFile for a non-empty path and a Stored source
// otherwise.
func Select(path string, store ConfigurationStore, logger *slog.Logger) Opener {
	if path != "" {
		return LocalFile{Path: path}
	}
	return &Stored{Store: store, Logger: logger}
}

// LocalFile reads the CSV from disk.
type LocalFile struct {
	Path string
}

func (f LocalFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open file %s: %w", unenroll.ErrInputUnavailable, f.Path, err)
	}
	return file, nil
}

func (f LocalFile) String() string {
	return "file " + f.Path
}

// Stored reads the CSV blob of the current configuration.
//
// The enabled flag is reported but not enforced.
type Stored struct {
	Store  ConfigurationStore
	Logger *slog.Logger
}

func (s *Stored) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("%w: no configuration store", unenroll.ErrInputUnavailable)
	}

	cfg, err := s.Store.CurrentConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: current configuration: %w", unenroll.ErrInputUnavailable, err)
	}
	if len(cfg.CSVFile) == 0 {
		return nil, fmt.Errorf("%w: configuration %d has no csv file", unenroll.ErrInputUnavailable, cfg.ID)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("using stored configuration",
		"configuration_id", cfg.ID,
		"change_date", cfg.ChangeDate,
		"enabled", cfg.Enabled,
		"bytes", len(cfg.CSVFile),
	)

	return io.NopCloser(bytes.NewReader(cfg.CSVFile)), nil
}

func (s *Stored) String() string {
	return "stored configuration"
}
