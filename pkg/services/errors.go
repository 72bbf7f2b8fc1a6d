// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/leadflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidSortField  = errors.New("invalid sort field")
	ErrInvalidSortOrder  = errors.New("invalid sort order")
	ErrInvalidStatus     = errors.New("invalid workflow status")
	ErrEmptyTenantID     = errors.New("tenant ID cannot be empty")
	ErrWorkflowNil       = errors.New("workflow cannot be nil")
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrInvalidNode       = errors.New("invalid node")
	ErrInvalidEdge       = errors.New("invalid edge")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify published workflow")
	ErrWorkflowNotPublished  = errors.New("workflow is not published")
	ErrNodeAlreadyExists     = errors.New("node already exists")
	ErrEdgeAlreadyExists     = errors.New("edge already exists")

	// Lookup Errors (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrNodeNotFound     = errors.New("node not found")
	ErrEdgeNotFound     = errors.New("edge not found")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyTenantID) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidDefinition) ||
		errors.Is(err, ErrInvalidNode) ||
		errors.Is(err, ErrInvalidEdge)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrWorkflowNotPublished) ||
		errors.Is(err, ErrNodeAlreadyExists) ||
		errors.Is(err, ErrEdgeAlreadyExists)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsWorkflowNotFound(err) ||
		persistence.IsExecutionNotFound(err) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
