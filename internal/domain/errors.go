package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("payment required")
	ErrUnsupportedProvider = errors.New("unsupported mobile money provider")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrProviderRejected    = errors.New("payment provider rejected the request")

	ErrPaymentNotFound      = fmt.Errorf("payment %w", ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("account %w", ErrNotFound)
	ErrStudentNotFound      = fmt.Errorf("student %w", ErrNotFound)
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, fields ...FieldError) error {
	return &ValidationError{Err: err, Fields: fields}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid %s: %s", e.Fields[0].Field, e.Fields[0].Error)
	}
	return "validation failed"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
