package domain

import (
	"errors" // Error wrapping
	"fmt"    // String formatting
)

// Error kinds. Test with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrStale      = errors.New("optimistic locking failure")
	ErrFatal      = errors.New("fatal")

	ErrInsufficientBalance = &Error{Kind: ErrValidation, Msg: "insufficient balance"}
	ErrAlreadyApplied      = &Error{Kind: ErrConflict, Msg: "operation already applied"}
)

// Error is a kinded error with a message safe to show to callers
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func Fatalf(format string, args ...any) error {
	return &Error{Kind: ErrFatal, Msg: fmt.Sprintf(format, args...)}
}
