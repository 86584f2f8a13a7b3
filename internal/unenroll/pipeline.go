package unenroll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/unenroll/internal/logging"
	"github.com/JonMunkholm/unenroll/internal/records"
	"github.com/google/uuid"
)

// Options tunes a Pipeline. The zero value is usable.
type Options struct {
	// RunID tags audit rows and log entries. When empty the ID carried by
	// the context is used, and failing that a new one is generated.
	RunID string

	// MutationTimeout bounds each row's unenroll. Zero means no bound.
	MutationTimeout time.Duration

	// MaxInputBytes caps the CSV source size. Zero means unlimited.
	MaxInputBytes int64

	// Sink receives each outcome as it is produced. Optional.
	Sink OutcomeSink

	// ParseCourse overrides course identifier validation. Defaults to coursekey.Parse.
	ParseCourse CourseParser
}

// Pipeline runs one unenroll batch at a time.
type Pipeline struct {
	users       UserDirectory
	enrollments EnrollmentStore
	logger      *slog.Logger
	opts        Options
}

// NewPipeline creates a Pipeline over the given stores.
func NewPipeline(users UserDirectory, enrollments EnrollmentStore, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		users:       users,
		enrollments: enrollments,
		logger:      logger,
		opts:        opts,
	}
}

// Run parses src and processes every row.
//
// A source that cannot be read returns an error wrapping
// ErrInputUnavailable before any row is touched.
func (p *Pipeline) Run(ctx context.Context, src io.Reader) (*Result, error) {
	batch, err := records.Parse(src, records.Options{MaxBytes: p.opts.MaxInputBytes})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	logging.FromContext(ctx, p.logger).Debug("input parsed",
		"rows", len(batch.Rows),
		"audit_columns", batch.ExtraColumns(),
	)
	return p.RunRows(ctx, batch.Rows)
}

// RunRows processes already-parsed rows in order and always returns exactly
// one outcome per row, unless a batch-wide lookup fails first.
func (p *Pipeline) RunRows(ctx context.Context, rows []records.Row) (*Result, error) {
	runID := p.opts.RunID
	if runID == "" {
		runID = logging.RunID(ctx)
	}
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx, p.logger)
	startTime := time.Now()

	logger.Info("unenroll run started", "rows", len(rows))

	resolver, err := NewResolver(ctx, p.users, p.opts.ParseCourse, rows, logger)
	if err != nil {
		return nil, err
	}

	index, err := LoadEnrollmentIndex(ctx, p.enrollments, resolver)
	if err != nil {
		return nil, err
	}
	logger.Debug("enrollments loaded", "active", index.Len())

	reconciler := NewReconciler(resolver, index, logger)
	executor := NewExecutor(p.enrollments, index, runID, p.opts.MutationTimeout, logger)
	reporter := NewReporter(logger, p.opts.Sink)

	outcomes := make([]RowOutcome, 0, len(rows))
	for _, row := range rows {
		match, outcome, eligible := reconciler.Reconcile(row)
		if eligible {
			outcome = executor.Execute(ctx, match)
		}
		reporter.Record(outcome)
		outcomes = append(outcomes, outcome)
	}

	summary := reporter.Finish()
	logger.Info("unenroll run finished", "duration", time.Since(startTime))

	return &Result{
		RunID:    runID,
		Outcomes: outcomes,
		Summary:  summary,
	}, nil
}
