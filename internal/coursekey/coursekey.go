// Package coursekey parses and validates course identifiers.
//
// Two forms are accepted:
//
//	course-v1:Org+Course+Run   (current form)
//	Org/Course/Run             (deprecated slash-separated form)
//
// A parsed [Key] is comparable and can be used directly as a map key.
// [Key.String] returns the canonical form, which is what the stores persist.
package coursekey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidKey is returned when a string is not a structurally valid course key.
var ErrInvalidKey = errors.New("invalid course key")

// Prefix is the namespace prefix of current-form course keys.
const Prefix = "course-v1"

// Part characters: letters, digits, underscore, dash, tilde, dot and colon.
const partPattern = `[\p{L}\p{N}_\-~.:]+`

var (
	currentRegex    = regexp.MustCompile(`^` + Prefix + `:(` + partPattern + `)\+(` + partPattern + `)\+(` + partPattern + `)$`)
	deprecatedRegex = regexp.MustCompile(`^(` + partPattern + `)/(` + partPattern + `)/(` + partPattern + `)$`)
)

// Key identifies a single course run.
type Key struct {
	Org    string
	Course string
	Run    string

	// Deprecated is true when the key was parsed from the slash form.
	Deprecated bool
}

// Parse validates s and returns its Key.
// Surrounding whitespace is ignored; everything else must match exactly.
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, fmt.Errorf("%w: empty identifier", ErrInvalidKey)
	}

	if m := currentRegex.FindStringSubmatch(s); m != nil {
		return Key{Org: m[1], Course: m[2], Run: m[3]}, nil
	}

	// Colons are only legal inside the current form.
	if m := deprecatedRegex.FindStringSubmatch(s); m != nil && !strings.Contains(s, ":") {
		return Key{Org: m[1], Course: m[2], Run: m[3], Deprecated: true}, nil
	}

	return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the canonical string form of the key.
func (k Key) String() string {
	if k.Deprecated {
		return k.Org + "/" + k.Course + "/" + k.Run
	}
	return Prefix + ":" + k.Org + "+" + k.Course + "+" + k.Run
}
