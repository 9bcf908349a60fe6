package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ride service unwraps to exactly
// one of these, so callers can map them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ErrVersionConflict is returned by a RideStore when a write was based on a
// stale version of the ride. It never leaves the service layer.
var ErrVersionConflict = errors.New("ride version changed since read")

// Error is a domain error carrying a human-readable message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func Forbiddenf(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) error {
	return newError(ErrInvalidArgument, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

func Unauthenticatedf(format string, args ...interface{}) error {
	return newError(ErrUnauthenticated, format, args...)
}

// Unavailable wraps a backend failure so it unwraps to both ErrUnavailable
// and the original cause.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, cause)
}

// BookingConflictError is returned when the rider already holds a
// reservation on the ride. It carries that reservation so the caller can
// show it.
type BookingConflictError struct {
	Existing Reservation
	Ride     *Ride
}

func (e *BookingConflictError) Error() string {
	return "you have already booked this ride"
}

func (e *BookingConflictError) Unwrap() error { return ErrConflict }

// Message returns the caller-facing text of err: the domain message when err
// is a domain error, a generic text otherwise.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	var bc *BookingConflictError
	if errors.As(err, &bc) {
		return bc.Error()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrConflict):
		return "request conflicts with the current state of the ride"
	case errors.Is(err, ErrUnavailable):
		return "a backing service is unavailable, please retry later"
	}
	return "internal error"
}
