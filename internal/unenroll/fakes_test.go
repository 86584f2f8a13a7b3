package unenroll

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/records"
)

type fakeStore struct {
	mu sync.Mutex

	users  []User
	active map[pairKey]bool

	lookupErr     error
	enrollmentErr error
	failFor       map[string]error
	panicFor      map[string]bool
	blockFor      map[string]bool
	afterUnenroll func(UnenrollRequest)

	userCalls       int
	enrollmentCalls int
	gotUsernames    []string
	gotEmails       []string
	unenrollCalls   []UnenrollRequest
}

func newFakeStore(users ...User) *fakeStore {
	return &fakeStore{
		users:    users,
		active:   make(map[pairKey]bool),
		failFor:  make(map[string]error),
		panicFor: make(map[string]bool),
		blockFor: make(map[string]bool),
	}
}

func (f *fakeStore) enroll(userID int64, course string) {
	f.active[pairKey{userID: userID, courseID: coursekey.MustParse(course).String()}] = true
}

func (f *fakeStore) isActive(userID int64, course string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[pairKey{userID: userID, courseID: coursekey.MustParse(course).String()}]
}

func (f *fakeStore) FindUsersByUsernameOrEmail(ctx context.Context, usernames, emails []string) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.userCalls++
	f.gotUsernames = usernames
	f.gotEmails = emails
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}

	names := toSet(usernames)
	mails := toSet(emails)
	var out []User
	for _, u := range f.users {
		if names[u.Username] || mails[u.Email] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) FindEnrollments(ctx context.Context, userIDs []int64, courses []coursekey.Key) ([]Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enrollmentCalls++
	if f.enrollmentErr != nil {
		return nil, f.enrollmentErr
	}

	var out []Enrollment
	for _, id := range userIDs {
		for _, k := range courses {
			if f.active[pairKey{userID: id, courseID: k.String()}] {
				out = append(out, Enrollment{UserID: id, CourseID: k.String()})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Unenroll(ctx context.Context, req UnenrollRequest) error {
	f.mu.Lock()
	f.unenrollCalls = append(f.unenrollCalls, req)
	block := f.blockFor[req.User.Username]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return fmt.Errorf("unenroll: %w", ctx.Err())
	}
	if f.panicFor[req.User.Username] {
		panic("boom")
	}
	if err := f.failFor[req.User.Username]; err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{userID: req.User.ID, courseID: req.Course.String()}
	if !f.active[key] {
		return fmt.Errorf("%w: user %d in %s", ErrEnrollmentNotFound, req.User.ID, req.Course)
	}
	delete(f.active, key)
	if f.afterUnenroll != nil {
		f.afterUnenroll(req)
	}
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// newTestLogger returns a logger writing text records into buf.
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func row(line int, username, email, course string) records.Row {
	return records.Row{Line: line, Username: username, Email: email, CourseID: course}
}

func kinds(outcomes []RowOutcome) []OutcomeKind {
	out := make([]OutcomeKind, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Kind
	}
	return out
}

// countLines counts log lines containing every one of substrs.
func countLines(logs string, substrs ...string) int {
	n := 0
next:
	for _, line := range strings.Split(logs, "\n") {
		for _, s := range substrs {
			if !strings.Contains(line, s) {
				continue next
			}
		}
		n++
	}
	return n
}
