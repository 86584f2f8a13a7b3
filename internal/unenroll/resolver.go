package unenroll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/JonMunkholm/unenroll/internal/coursekey"
	"github.com/JonMunkholm/unenroll/internal/records"
)

type courseResolution struct {
	key coursekey.Key
	err error
}

// Resolver holds the batch-wide identity lookups: one user query and one
// parse per distinct course identifier.
type Resolver struct {
	byUsername map[string]User
	byEmail    map[string][]User
	users      []User

	courses map[string]courseResolution
	keys    []coursekey.Key
	parse   CourseParser
	logger  *slog.Logger
}

// NewResolver resolves every identity referenced by rows.
//
// Usernames and emails are collected into sets and fetched with a single
// call to dir. Each distinct course identifier is parsed once; an invalid
// identifier is logged once, no matter how many rows repeat it.
func NewResolver(ctx context.Context, dir UserDirectory, parse CourseParser, rows []records.Row, logger *slog.Logger) (*Resolver, error) {
	if parse == nil {
		parse = coursekey.Parse
	}

	r := &Resolver{
		byUsername: make(map[string]User),
		byEmail:    make(map[string][]User),
		courses:    make(map[string]courseResolution),
		parse:      parse,
		logger:     logger,
	}

	usernames, emails := distinctIdentities(rows)
	if len(usernames) > 0 || len(emails) > 0 {
		users, err := dir.FindUsersByUsernameOrEmail(ctx, usernames, emails)
		if err != nil {
			return nil, fmt.Errorf("%w: find users: %w", ErrLookupFailed, err)
		}
		r.index(users)
	}

	for _, row := range rows {
		r.ResolveCourse(row.CourseID)
	}

	logger.Debug("identities resolved",
		"usernames", len(usernames),
		"emails", len(emails),
		"users_found", len(r.users),
		"courses", len(r.courses),
		"valid_courses", len(r.keys),
	)

	return r, nil
}

func distinctIdentities(rows []records.Row) (usernames, emails []string) {
	seenNames := make(map[string]bool)
	seenEmails := make(map[string]bool)
	for _, row := range rows {
		if row.Username != "" && !seenNames[row.Username] {
			seenNames[row.Username] = true
			usernames = append(usernames, row.Username)
		}
		if row.Email != "" && !seenEmails[row.Email] {
			seenEmails[row.Email] = true
			emails = append(emails, row.Email)
		}
	}
	return usernames, emails
}

func (r *Resolver) index(users []User) {
	seen := make(map[int64]bool, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		r.users = append(r.users, u)

		if u.Username != "" {
			r.byUsername[u.Username] = u
		}
		if u.Email != "" {
			r.byEmail[u.Email] = append(r.byEmail[u.Email], u)
		}
	}
	sort.Slice(r.users, func(i, j int) bool { return r.users[i].ID < r.users[j].ID })
}

// ResolveUser finds the single user a row refers to.
//
// A username match wins and email is the fallback. The result is
// ErrAmbiguousUser when the username and email match two different users,
// or when only the email matches and it is shared by several users.
// Otherwise an unmatched row yields ErrUnknownUser.
func (r *Resolver) ResolveUser(username, email string) (User, error) {
	var emailMatches []User
	if email != "" {
		emailMatches = r.byEmail[email]
	}

	if username != "" {
		if u, ok := r.byUsername[username]; ok {
			for _, m := range emailMatches {
				if m.ID != u.ID {
					return User{}, fmt.Errorf("%w: username %q is user %d, email %q is user %d",
						ErrAmbiguousUser, username, u.ID, email, m.ID)
				}
			}
			return u, nil
		}
	}

	switch len(emailMatches) {
	case 0:
		return User{}, fmt.Errorf("%w: username %q or email %q", ErrUnknownUser, username, email)
	case 1:
		return emailMatches[0], nil
	default:
		return User{}, fmt.Errorf("%w: email %q matches %d users", ErrAmbiguousUser, email, len(emailMatches))
	}
}

// ResolveCourse returns the parsed key for id, or an error wrapping
// ErrInvalidCourse. Results are cached per identifier string.
func (r *Resolver) ResolveCourse(id string) (coursekey.Key, error) {
	if res, ok := r.courses[id]; ok {
		return res.key, res.err
	}

	key, err := r.parse(id)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCourse, err)
		r.logger.Warn("invalid course id", "course_id", id, "error", err)
		r.courses[id] = courseResolution{err: err}
		return coursekey.Key{}, err
	}

	r.courses[id] = courseResolution{key: key}
	r.keys = append(r.keys, key)
	return key, nil
}

// UserIDs returns the IDs of every fetched user, ascending.
func (r *Resolver) UserIDs() []int64 {
	ids := make([]int64, len(r.users))
	for i, u := range r.users {
		ids[i] = u.ID
	}
	return ids
}

// CourseKeys returns the distinct valid course keys in first-seen order.
func (r *Resolver) CourseKeys() []coursekey.Key {
	seen := make(map[coursekey.Key]bool, len(r.keys))
	keys := make([]coursekey.Key, 0, len(r.keys))
	for _, k := range r.keys {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
