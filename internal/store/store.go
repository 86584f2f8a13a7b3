// Package store selects the persistence backend named by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/unenroll/internal/config"
	"github.com/JonMunkholm/unenroll/internal/source"
	"github.com/JonMunkholm/unenroll/internal/store/postgres"
	"github.com/JonMunkholm/unenroll/internal/store/sqlite"
	"github.com/JonMunkholm/unenroll/internal/unenroll"
)

// Backend is everything a run needs from persistence.
type Backend interface {
	unenroll.UserDirectory
	unenroll.EnrollmentStore
	source.ConfigurationStore

	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects the backend for cfg.Driver and applies the schema when
// cfg.Migrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		b, err = postgres.Open(ctx, cfg, logger)
	case "sqlite":
		b, err = sqlite.Open(ctx, cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.Migrate {
		if err := b.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
	}

	return b, nil
}
