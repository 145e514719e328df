package workflow

import (
	"errors"
	"fmt"
)

// Caller-facing error kinds. Operations wrap one of these with context;
// match them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence error")
)

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func validationf(format string, args ...any) error { return wrap(ErrValidation, format, args...) }
func forbiddenf(format string, args ...any) error  { return wrap(ErrForbidden, format, args...) }
func transitionf(format string, args ...any) error { return wrap(ErrInvalidTransition, format, args...) }

// NotFoundf and Persistence are exported for the service layer, which is
// where lookups and writes happen.
func NotFoundf(format string, args ...any) error { return wrap(ErrNotFound, format, args...) }

func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Stale builds the error for a guarded write that found the record already
// moved on. Equal statuses mean another write touched the record in between.
func Stale(expected, actual string) error {
	if expected == actual {
		return transitionf("record was changed by another user, reload and retry")
	}
	return transitionf("expected status %s, record is %s", expected, actual)
}

// Validationf is the exported form for checks that need a lookup (assignee roles).
func Validationf(format string, args ...any) error { return validationf(format, args...) }
