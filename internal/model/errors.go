package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrOverlap           = errors.New("table is already reserved for the specified time")
	ErrCapacityExceeded  = errors.New("party size exceeds table capacity")
	ErrInvalidInterval   = errors.New("invalid reservation interval")
	ErrTooShort          = errors.New("reservation is shorter than the minimum duration")
	ErrTooLong           = errors.New("reservation is longer than the maximum duration")
	ErrInPast            = errors.New("reservation must not start in the past")
	ErrInvalidPartySize  = errors.New("invalid party size")
	ErrInsufficientFunds = errors.New("insufficient balance for reservation")
	ErrPromocodeExpired  = errors.New("promocode has expired")
	ErrInvalidTransition = errors.New("invalid reservation status transition")
	ErrValidation        = errors.New("validation failed")
)

// ValidationError は入力値の検証エラーです
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf は書式付きの ValidationError を返します
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
