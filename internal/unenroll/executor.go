package unenroll

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Executor applies unenrolls, one row at a time.
// A failure is confined to its row and never stops the batch.
type Executor struct {
	store   EnrollmentStore
	index   *EnrollmentIndex
	runID   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A non-positive timeout means a row's
// unenroll may block as long as ctx allows.
func NewExecutor(store EnrollmentStore, ix *EnrollmentIndex, runID string, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		index:   ix,
		runID:   runID,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute unenrolls m with refunds suppressed.
//
// On success the pair is dropped from the index, so a repeated row later in
// the batch reconciles as OutcomeSkippedNoEnrollment instead of being
// unenrolled twice.
func (e *Executor) Execute(ctx context.Context, m Match) RowOutcome {
	user, course := m.User, m.Course
	outcome := RowOutcome{Row: m.Row, User: &user, Course: &course}

	stack, err := e.unenroll(ctx, UnenrollRequest{
		RunID:       e.runID,
		User:        m.User,
		Course:      m.Course,
		SkipRefund:  true,
		AuditFields: m.Row.Extra,
	})
	if err != nil {
		class := ClassifyFailure(err)
		attrs := []any{
			"line", m.Row.Line,
			"username", m.Row.Username,
			"user_id", m.User.ID,
			"course_id", m.Row.CourseID,
			"code", class.Code,
			"reason", class.Message,
			"error", err,
		}
		if stack != nil {
			attrs = append(attrs, "stack", string(stack))
		}
		e.logger.Error("error un-enrolling user from course", attrs...)
		outcome.Kind = OutcomeFailedMutation
		outcome.Err = fmt.Errorf("%w: %w", ErrMutationFailed, err)
		return outcome
	}

	e.index.Remove(m.User.ID, m.Course)
	outcome.Kind = OutcomeUnenrolled
	return outcome
}

// unenroll calls the store, returning the goroutine stack when the store
// panicked. A cancelled run never reaches the store.
func (e *Executor) unenroll(ctx context.Context, req UnenrollRequest) (stack []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run stopped before unenroll: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			stack = debug.Stack()
			err = fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()

	return nil, e.store.Unenroll(ctx, req)
}
