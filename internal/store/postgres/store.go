// Package postgres implements the unenroll stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/unenroll/internal/config"
	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/logging"
	"github.com/JonMunkholm/unenroll/internal/source"
	"github.com/JonMunkholm/unenroll/internal/unenroll"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store reads users and enrollments and deactivates enrollments.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects a pool using cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(pool, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// FindUsersByUsernameOrEmail fetches every matching user in one query.
func (s *Store) FindUsersByUsernameOrEmail(ctx context.Context, usernames, emails []string) ([]unenroll.User, error) {
	return findUsers(ctx, s.pool, usernames, emails)
}

func findUsers(ctx context.Context, db DBTX, usernames, emails []string) ([]unenroll.User, error) {
	if usernames == nil {
		usernames = []string{}
	}
	if emails == nil {
		emails = []string{}
	}

	rows, err := db.Query(ctx, `
		SELECT id, username, email
		FROM auth_user
		WHERE username = ANY($1) OR email = ANY($2)
		ORDER BY id`, usernames, emails)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (unenroll.User, error) {
		var u unenroll.User
		err := row.Scan(&u.ID, &u.Username, &u.Email)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// FindEnrollments returns active enrollments for the cross product of
// userIDs and courses.
func (s *Store) FindEnrollments(ctx context.Context, userIDs []int64, courses []coursekey.Key) ([]unenroll.Enrollment, error) {
	if len(userIDs) == 0 || len(courses) == 0 {
		return nil, nil
	}

	courseIDs := make([]string, len(courses))
	for i, k := range courses {
		courseIDs[i] = k.String()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, course_id
		FROM student_courseenrollment
		WHERE is_active AND user_id = ANY($1) AND course_id = ANY($2)`, userIDs, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}

	enrollments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (unenroll.Enrollment, error) {
		var e unenroll.Enrollment
		err := row.Scan(&e.UserID, &e.CourseID)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan enrollments: %w", err)
	}
	return enrollments, nil
}

// Unenroll deactivates one enrollment and records an audit row in the same
// transaction.
func (s *Store) Unenroll(ctx context.Context, req unenroll.UnenrollRequest) error {
	auditJSON, err := req.AuditJSON()
	if err != nil {
		return err
	}
	courseID := req.Course.String()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE student_courseenrollment
			SET is_active = FALSE
			WHERE user_id = $1 AND course_id = $2 AND is_active`, req.User.ID, courseID)
		if err != nil {
			return fmt.Errorf("deactivate enrollment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: user %d in %s", unenroll.ErrEnrollmentNotFound, req.User.ID, courseID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO student_unenroll_audit (id, run_id, user_id, course_id, skip_refund, audit_fields)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), req.RunID, req.User.ID, courseID, req.SkipRefund, auditJSON)
		if err != nil {
			return fmt.Errorf("insert audit row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.WithFields(ctx, s.logger, "user_id", req.User.ID, "course_id", courseID).
		Debug("enrollment deactivated")
	return nil
}

// CurrentConfiguration returns the newest configuration row.
func (s *Store) CurrentConfiguration(ctx context.Context) (source.Configuration, error) {
	var cfg source.Configuration
	err := s.pool.QueryRow(ctx, `
		SELECT id, change_date, enabled, csv_file
		FROM student_bulkunenrollconfiguration
		ORDER BY change_date DESC, id DESC
		LIMIT 1`).Scan(&cfg.ID, &cfg.ChangeDate, &cfg.Enabled, &cfg.CSVFile)
	if errors.Is(err, pgx.ErrNoRows) {
		return source.Configuration{}, source.ErrNoConfiguration
	}
	if err != nil {
		return source.Configuration{}, fmt.Errorf("query configuration: %w", err)
	}
	return cfg, nil
}
