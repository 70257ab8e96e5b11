package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// Validation errors
var (
	ErrInvalidTaskStatus    = NewDomainError(ErrCodeValidation, "invalid task status")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrEmptyChapterContent  = NewDomainError(ErrCodeValidation, "chapter content cannot be empty")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrTaskNotFound    = NewDomainError(ErrCodeNotFound, "task not found")
	ErrChapterNotFound = NewDomainError(ErrCodeNotFound, "chapter not found")
)

// Operation errors
var (
	ErrUnknownTaskKind = NewDomainError(ErrCodeInvalidOperation, "no handler registered for task kind")
	ErrQueueFull       = NewDomainError(ErrCodeInvalidOperation, "task queue is full")
	ErrQueueStopped    = NewDomainError(ErrCodeInvalidOperation, "task queue is not accepting work")
)

// Availability errors
var (
	ErrGeneratorUnavailable = NewDomainError(ErrCodeUnavailable, "generation backend unavailable")
	ErrVectorStoreNotReady  = NewDomainError(ErrCodeUnavailable, "vector store not initialized")
)
