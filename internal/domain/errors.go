package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors so adapters can map them to transport
// status codes without string matching.
type ErrorKind string

const (
	ErrorKindInvalidPage ErrorKind = "invalid_page"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindConflict    ErrorKind = "conflict"
	ErrorKindRender      ErrorKind = "render"
	ErrorKindExternal    ErrorKind = "external"
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindConfig      ErrorKind = "config"
	ErrorKindIO          ErrorKind = "io"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func InvalidPageError(message string, err error) *DomainError {
	return NewError(ErrorKindInvalidPage, message, err)
}

func NotFoundError(message string, err error) *DomainError {
	return NewError(ErrorKindNotFound, message, err)
}

func ConflictError(message string, err error) *DomainError {
	return NewError(ErrorKindConflict, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorKindRender, message, err)
}

func ExternalError(message string, err error) *DomainError {
	return NewError(ErrorKindExternal, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorKindValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorKindConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorKindIO, message, err)
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
