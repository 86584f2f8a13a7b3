package unenroll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/records"
)

// User is a resolved account.
type User struct {
	ID       int64
	Username string
	Email    string
}

// Enrollment is an active (user, course) relationship observed in the store.
// CourseID is the canonical course key string.
type Enrollment struct {
	UserID   int64
	CourseID string
}

// UnenrollRequest carries everything a store needs to deactivate one enrollment.
type UnenrollRequest struct {
	RunID  string
	User   User
	Course coursekey.Key

	// SkipRefund suppresses refund processing. The batch tool always sets it.
	SkipRefund bool

	// AuditFields are the passthrough columns of the originating row.
	AuditFields []records.Field
}

// UserDirectory looks up accounts in bulk.
type UserDirectory interface {
	// FindUsersByUsernameOrEmail returns every user whose username is in
	// usernames or whose email is in emails.
	FindUsersByUsernameOrEmail(ctx context.Context, usernames, emails []string) ([]User, error)
}

// EnrollmentStore reads and deactivates enrollments.
type EnrollmentStore interface {
	// FindEnrollments returns the active enrollments of the given users in
	// the given courses.
	FindEnrollments(ctx context.Context, userIDs []int64, courses []coursekey.Key) ([]Enrollment, error)

	// Unenroll deactivates one enrollment. It returns an error wrapping
	// ErrEnrollmentNotFound if no active enrollment matched.
	Unenroll(ctx context.Context, req UnenrollRequest) error
}

// CourseParser validates a course identifier string.
type CourseParser func(string) (coursekey.Key, error)

// OutcomeKind is the terminal state of one row.
type OutcomeKind int

const (
	OutcomeUnenrolled OutcomeKind = iota
	OutcomeSkippedUnknownUser
	OutcomeSkippedInvalidCourse
	OutcomeSkippedNoEnrollment
	OutcomeFailedMutation
)

// OutcomeKinds lists every kind in reporting order.
var OutcomeKinds = []OutcomeKind{
	OutcomeUnenrolled,
	OutcomeSkippedUnknownUser,
	OutcomeSkippedInvalidCourse,
	OutcomeSkippedNoEnrollment,
	OutcomeFailedMutation,
}

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnenrolled:
		return "unenrolled"
	case OutcomeSkippedUnknownUser:
		return "skipped_unknown_user"
	case OutcomeSkippedInvalidCourse:
		return "skipped_invalid_course"
	case OutcomeSkippedNoEnrollment:
		return "skipped_no_enrollment"
	case OutcomeFailedMutation:
		return "failed_mutation"
	default:
		return "unknown"
	}
}

// RowOutcome is the result for one input row.
type RowOutcome struct {
	Row  records.Row
	Kind OutcomeKind

	// User and Course are set as far as resolution got.
	User   *User
	Course *coursekey.Key

	// Err explains every kind except OutcomeUnenrolled.
	Err error
}

// PairLabel returns the "username:courseIdentifier" label of the row.
func (o RowOutcome) PairLabel() string {
	return o.Row.Username + ":" + o.Row.CourseID
}

// Summary aggregates a run.
type Summary struct {
	// Unenrolled lists "username:courseIdentifier" labels in processing order.
	Unenrolled []string
	Counts     map[OutcomeKind]int
	Total      int
}

// Result is everything a run produced.
type Result struct {
	RunID    string
	Outcomes []RowOutcome
	Summary  Summary
}

// AuditJSON encodes the passthrough columns as a JSON object. The first
// occurrence of a column name wins.
func (r UnenrollRequest) AuditJSON() ([]byte, error) {
	fields := make(map[string]string, len(r.AuditFields))
	for _, f := range r.AuditFields {
		if _, ok := fields[f.Name]; !ok {
			fields[f.Name] = f.Value
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode audit fields: %w", err)
	}
	return data, nil
}
