// Package apperrors holds the error classes shared across the pipeline.
//
// A UserError is an expected condition the requester can fix (wrong media
// type, an output that cannot be made small enough). It is reported back
// verbatim and is not logged as a bug. EmptyResultError marks a transform
// that was supposed to produce something and did not.
package apperrors

import (
	"errors"
	"fmt"
)

// UserError is an expected failure whose message is safe to show the requester.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	return e.Msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Userf builds a UserError from a format string.
func Userf(format string, args ...interface{}) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// WrapUser attaches a user-facing message to an underlying cause.
func WrapUser(err error, format string, args ...interface{}) error {
	return &UserError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsUser reports whether err is, or wraps, a UserError.
func IsUser(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// UserMessage returns the user-facing message of err, if it has one.
func UserMessage(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg, true
	}
	return "", false
}

// EmptyResultError is returned when a transform that must produce a file or
// a string returned nothing.
type EmptyResultError struct {
	Transform string
	Expected  string // "file" or "text"
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("expected %s, %s returned nothing", e.Expected, e.Transform)
}

// IsEmptyResult reports whether err is, or wraps, an EmptyResultError.
func IsEmptyResult(err error) bool {
	var er *EmptyResultError
	return errors.As(err, &er)
}
