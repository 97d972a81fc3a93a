// Package cfgerr provides the single configuration-error type shared by
// every constructor in this module (window.New, nsdf.New, mpm.New,
// sfnov.New). Construction is the only place errors are returned from;
// runtime degeneracies never produce an error (see each package's doc).
package cfgerr

import "fmt"

// Error reports an invalid constructor argument. Field names the offending
// configuration field so callers can report it without string-matching
// the message.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// New builds an *Error for the given field.
func New(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}
