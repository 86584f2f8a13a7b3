package unenroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/records"
)

type pairKey struct {
	userID   int64
	courseID string
}

// EnrollmentIndex is the batch-wide set of active enrollments.
type EnrollmentIndex struct {
	pairs map[pairKey]struct{}
}

// LoadEnrollmentIndex fetches, in one call, the active enrollments of every
// resolved user in every valid course of the batch.
func LoadEnrollmentIndex(ctx context.Context, store EnrollmentStore, res *Resolver) (*EnrollmentIndex, error) {
	ix := &EnrollmentIndex{pairs: make(map[pairKey]struct{})}

	userIDs := res.UserIDs()
	keys := res.CourseKeys()
	if len(userIDs) == 0 || len(keys) == 0 {
		return ix, nil
	}

	enrollments, err := store.FindEnrollments(ctx, userIDs, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: find enrollments: %w", ErrLookupFailed, err)
	}

	for _, e := range enrollments {
		ix.pairs[pairKey{userID: e.UserID, courseID: e.CourseID}] = struct{}{}
	}
	return ix, nil
}

// NewEnrollmentIndex builds an index from known enrollments.
func NewEnrollmentIndex(enrollments ...Enrollment) *EnrollmentIndex {
	ix := &EnrollmentIndex{pairs: make(map[pairKey]struct{}, len(enrollments))}
	for _, e := range enrollments {
		ix.pairs[pairKey{userID: e.UserID, courseID: e.CourseID}] = struct{}{}
	}
	return ix
}

// Has reports whether the user holds an active enrollment in the course.
func (ix *EnrollmentIndex) Has(userID int64, key coursekey.Key) bool {
	_, ok := ix.pairs[pairKey{userID: userID, courseID: key.String()}]
	return ok
}

// Remove forgets an enrollment once it has been deactivated.
func (ix *EnrollmentIndex) Remove(userID int64, key coursekey.Key) {
	delete(ix.pairs, pairKey{userID: userID, courseID: key.String()})
}

// Len returns the number of indexed enrollments.
func (ix *EnrollmentIndex) Len() int {
	return len(ix.pairs)
}

// Match is a row that passed reconciliation.
type Match struct {
	Row    records.Row
	User   User
	Course coursekey.Key
}

// Reconciler decides, per row, whether an unenroll applies.
// It never mutates state; its only side effect is logging.
type Reconciler struct {
	resolver *Resolver
	index    *EnrollmentIndex
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler over batch-scoped lookups.
func NewReconciler(res *Resolver, ix *EnrollmentIndex, logger *slog.Logger) *Reconciler {
	return &Reconciler{resolver: res, index: ix, logger: logger}
}

// Reconcile returns the match and true when the row is eligible for
// unenroll. Otherwise it returns the row's terminal outcome and false.
//
// The course is checked before the user, so an unparseable course id always
// yields OutcomeSkippedInvalidCourse.
func (rc *Reconciler) Reconcile(row records.Row) (Match, RowOutcome, bool) {
	log := rc.logger.With("line", row.Line, "username", row.Username, "email", row.Email, "course_id", row.CourseID)
	if row.Short {
		log.Warn("record has fewer cells than the header, missing cells are empty")
	}

	key, err := rc.resolver.ResolveCourse(row.CourseID)
	if err != nil {
		log.Warn("invalid course id, skipping un-enrollment")
		return Match{}, RowOutcome{Row: row, Kind: OutcomeSkippedInvalidCourse, Err: err}, false
	}

	user, err := rc.resolver.ResolveUser(row.Username, row.Email)
	if err != nil {
		if errors.Is(err, ErrAmbiguousUser) {
			log.Warn("username and email match different users, skipping un-enrollment", "error", err)
		} else {
			log.Warn("user with username or email does not exist")
		}
		return Match{}, RowOutcome{Row: row, Kind: OutcomeSkippedUnknownUser, Course: &key, Err: err}, false
	}

	if !rc.index.Has(user.ID, key) {
		log.Info("enrollment does not exist", "user_id", user.ID)
		return Match{}, RowOutcome{
			Row:    row,
			Kind:   OutcomeSkippedNoEnrollment,
			User:   &user,
			Course: &key,
			Err:    fmt.Errorf("%w: user %d in %s", ErrEnrollmentNotFound, user.ID, key),
		}, false
	}

	return Match{Row: row, User: user, Course: key}, RowOutcome{}, true
}
