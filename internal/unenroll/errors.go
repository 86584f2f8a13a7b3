package unenroll

import (
	"errors"
	"fmt"
)

var (
	// ErrInputUnavailable means the batch source could not be opened or read.
	// It is the only row-independent failure of the input side.
	ErrInputUnavailable = errors.New("input unavailable")

	// ErrLookupFailed means one of the batch-wide queries failed, so no row
	// can be reconciled.
	ErrLookupFailed = errors.New("bulk lookup failed")

	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidCourse      = errors.New("invalid course identifier")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrMutationFailed     = errors.New("unenroll failed")
)

// ErrAmbiguousUser is an unknown-user condition where username and email
// point at different users, or an email is shared by several users.
var ErrAmbiguousUser = fmt.Errorf("%w: ambiguous match", ErrUnknownUser)
