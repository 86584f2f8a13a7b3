// Package sqlite implements the unenroll stores on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/logging"
	"github.com/JonMunkholm/unenroll/internal/source"
	"github.com/JonMunkholm/unenroll/internal/unenroll"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// maxParams bounds the placeholders of a single IN list.
const maxParams = 500

// Store is a SQLite-backed user directory, enrollment store and
// configuration store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the handle for seeding and inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindUsersByUsernameOrEmail returns every user matching a username or an
// email, ordered by ID.
func (s *Store) FindUsersByUsernameOrEmail(ctx context.Context, usernames, emails []string) ([]unenroll.User, error) {
	found := make(map[int64]unenroll.User)

	lookups := []struct {
		column string
		values []string
	}{
		{"username", usernames},
		{"email", emails},
	}
	for _, l := range lookups {
		for _, chunk := range chunks(l.values, maxParams) {
			query := `SELECT id, username, email FROM auth_user WHERE ` + l.column + ` IN (` + placeholders(len(chunk)) + `)`
			if err := s.scanUsers(ctx, query, toArgs(chunk), found); err != nil {
				return nil, err
			}
		}
	}

	users := make([]unenroll.User, 0, len(found))
	for _, u := range found {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) scanUsers(ctx context.Context, query string, args []any, into map[int64]unenroll.User) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u unenroll.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return fmt.Errorf("scan user: %w", err)
		}
		into[u.ID] = u
	}
	return rows.Err()
}

// FindEnrollments returns active enrollments for the cross product of
// userIDs and courses.
func (s *Store) FindEnrollments(ctx context.Context, userIDs []int64, courses []coursekey.Key) ([]unenroll.Enrollment, error) {
	courseIDs := make([]string, len(courses))
	for i, k := range courses {
		courseIDs[i] = k.String()
	}

	var out []unenroll.Enrollment
	for _, ids := range chunks(userIDs, maxParams/2) {
		for _, cids := range chunks(courseIDs, maxParams/2) {
			query := `SELECT user_id, course_id FROM student_courseenrollment
				WHERE is_active = 1
				AND user_id IN (` + placeholders(len(ids)) + `)
				AND course_id IN (` + placeholders(len(cids)) + `)`

			args := append(toArgs(ids), toArgs(cids)...)
			rows, err := s.db.QueryContext(ctx, query, args...)
			if err != nil {
				return nil, fmt.Errorf("query enrollments: %w", err)
			}
			for rows.Next() {
				var e unenroll.Enrollment
				if err := rows.Scan(&e.UserID, &e.CourseID); err != nil {
					rows.Close()
					return nil, fmt.Errorf("scan enrollment: %w", err)
				}
				out = append(out, e)
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				return nil, fmt.Errorf("read enrollments: %w", err)
			}
		}
	}
	return out, nil
}

// Unenroll deactivates one enrollment and records an audit row in the same
// transaction.
func (s *Store) Unenroll(ctx context.Context, req unenroll.UnenrollRequest) (err error) {
	auditJSON, err := req.AuditJSON()
	if err != nil {
		return err
	}
	courseID := req.Course.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE student_courseenrollment SET is_active = 0
		WHERE user_id = ? AND course_id = ? AND is_active = 1`, req.User.ID, courseID)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d in %s", unenroll.ErrEnrollmentNotFound, req.User.ID, courseID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO student_unenroll_audit (id, run_id, user_id, course_id, skip_refund, audit_fields, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), req.RunID, req.User.ID, courseID, req.SkipRefund, string(auditJSON),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.WithFields(ctx, s.logger, "user_id", req.User.ID, "course_id", courseID).
		Debug("enrollment deactivated")
	return nil
}

// CurrentConfiguration returns the newest configuration row.
func (s *Store) CurrentConfiguration(ctx context.Context) (source.Configuration, error) {
	var (
		cfg        source.Configuration
		changeDate string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, change_date, enabled, csv_file
		FROM student_bulkunenrollconfiguration
		ORDER BY change_date DESC, id DESC
		LIMIT 1`).Scan(&cfg.ID, &changeDate, &cfg.Enabled, &cfg.CSVFile)
	if errors.Is(err, sql.ErrNoRows) {
		return source.Configuration{}, source.ErrNoConfiguration
	}
	if err != nil {
		return source.Configuration{}, fmt.Errorf("query configuration: %w", err)
	}

	cfg.ChangeDate, err = time.Parse(time.RFC3339Nano, changeDate)
	if err != nil {
		return source.Configuration{}, fmt.Errorf("parse change_date %q: %w", changeDate, err)
	}
	return cfg, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs[T any](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func chunks[T any](values []T, size int) [][]T {
	var out [][]T
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
