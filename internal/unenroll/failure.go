package unenroll

// failure.go classifies unenroll failures for operators.
//
// Every failed mutation is logged with a short code so that repeated failures
// across a batch can be grouped from the log stream:
//
//	MUT001 - Enrollment vanished between reconciliation and unenroll
//	DB004  - Connection refused
//	DB005  - Connection reset
//	DB006  - Timeout (including per-row deadline)
//	DB007  - Deadlock or serialization failure
//	DB008  - Database locked (SQLite)
//	RUN001 - Run cancelled
//	RUN002 - Store panicked
//	ERR000 - Anything else; see the error chain in the same log entry
//
// Sentinel checks run first, then case-insensitive substring patterns in
// order; the first match wins.

import (
	"context"
	"errors"
	"strings"
)

// FailureClass describes why a mutation failed.
type FailureClass struct {
	Code    string
	Message string
}

type failurePattern struct {
	pattern string
	class   FailureClass
}

var errPanicked = errors.New("store panicked")

var failurePatterns = []failurePattern{
	{pattern: "connection refused", class: FailureClass{Code: "DB004", Message: "Unable to connect to database"}},
	{pattern: "connection reset", class: FailureClass{Code: "DB005", Message: "Database connection was interrupted"}},
	{pattern: "timeout", class: FailureClass{Code: "DB006", Message: "Operation timed out"}},
	{pattern: "deadlock", class: FailureClass{Code: "DB007", Message: "Database was busy with conflicting operations"}},
	{pattern: "could not serialize", class: FailureClass{Code: "DB007", Message: "Database was busy with conflicting operations"}},
	{pattern: "database is locked", class: FailureClass{Code: "DB008", Message: "Database file is locked by another writer"}},
}

var (
	classVanished  = FailureClass{Code: "MUT001", Message: "Enrollment no longer active"}
	classTimeout   = FailureClass{Code: "DB006", Message: "Operation timed out"}
	classCancelled = FailureClass{Code: "RUN001", Message: "Run was cancelled"}
	classPanicked  = FailureClass{Code: "RUN002", Message: "Store panicked during unenroll"}
	classUnknown   = FailureClass{Code: "ERR000", Message: "An unexpected error occurred"}
)

// ClassifyFailure maps a mutation error to its FailureClass.
// A nil error yields the zero FailureClass.
func ClassifyFailure(err error) FailureClass {
	switch {
	case err == nil:
		return FailureClass{}
	case errors.Is(err, ErrEnrollmentNotFound):
		return classVanished
	case errors.Is(err, context.DeadlineExceeded):
		return classTimeout
	case errors.Is(err, context.Canceled):
		return classCancelled
	case errors.Is(err, errPanicked):
		return classPanicked
	}

	errStr := strings.ToLower(err.Error())
	for _, fp := range failurePatterns {
		if strings.Contains(errStr, fp.pattern) {
			return fp.class
		}
	}

	return classUnknown
}
