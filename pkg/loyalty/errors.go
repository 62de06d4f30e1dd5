package loyalty

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly one
// of them through errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoDefaultBooking    = errors.New("no default booking")
	ErrPersistence         = errors.New("persistence error")
	ErrLedgerCorrupt       = errors.New("ledger corrupt")
	ErrConflict            = errors.New("concurrent modification")
)

// Validation failures.
var (
	ErrInvalidGuestID      = fmt.Errorf("%w: invalid guest id", ErrValidation)
	ErrInvalidBookingID    = fmt.Errorf("%w: invalid booking id", ErrValidation)
	ErrInvalidRoomID       = fmt.Errorf("%w: invalid room id", ErrValidation)
	ErrInvalidRoomNumber   = fmt.Errorf("%w: invalid room number", ErrValidation)
	ErrInvalidEmail        = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidName         = fmt.Errorf("%w: invalid name", ErrValidation)
	ErrInvalidActor        = fmt.Errorf("%w: invalid actor", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidSessionToken = fmt.Errorf("%w: invalid session token", ErrValidation)
	ErrInvalidGuestType    = fmt.Errorf("%w: invalid guest type", ErrValidation)
	ErrInvalidOrderKind    = fmt.Errorf("%w: invalid order kind", ErrValidation)
	ErrInvalidOrderStatus  = fmt.Errorf("%w: invalid order status", ErrValidation)
	ErrConsentRequired     = fmt.Errorf("%w: consent required", ErrValidation)
)

// ErrInvalidServiceConfig reports a miswired service constructor.
var ErrInvalidServiceConfig = errors.New("invalid service config")

// Lookup failures.
var (
	ErrGuestNotFound   = fmt.Errorf("%w: guest", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("%w: booking", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
)

// PersistenceFailure marks err as a failure of the underlying store.
func PersistenceFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// ConflictFailure marks err as a write rejected by a uniqueness constraint.
func ConflictFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConflict, err)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
