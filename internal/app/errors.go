package app

import (
	"errors"
	"fmt"
)

// Error kinds. DomainError unwraps to exactly one of them.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidationFailed   = errors.New("validation failed")
	ErrContentUnavailable = errors.New("content unavailable")
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeContentUnavailable = "CONTENT_UNAVAILABLE"
)

type DomainError struct {
	Kind    error
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// Fatal reports whether the request cannot produce any result.
// Validation failures and unavailable content still carry a response.
func (e *DomainError) Fatal() bool {
	return errors.Is(e.Kind, ErrNotFound) || errors.Is(e.Kind, ErrForbidden)
}

func domainError(kind error, code, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(message string) *DomainError {
	return domainError(ErrNotFound, CodeNotFound, message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(ErrForbidden, CodeForbidden, message, nil)
}
