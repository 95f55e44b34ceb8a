// Package services provides standardized error types for service layer
// operations.
package services

import (
	"errors"
	"fmt"

	"github.com/expflow/expflow/pkg/catalog"
	"github.com/expflow/expflow/pkg/models"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrExperimentRequired   = errors.New("experiment id is required")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowHasCycle     = errors.New("workflow contains a cycle")
	ErrWorkflowEmpty        = errors.New("workflow has no nodes")

	// ErrInvalidRunData marks a run whose backing workflow document is
	// empty or malformed. Views surface it as "invalid data", never as a
	// crash.
	ErrInvalidRunData = errors.New("run has invalid workflow data")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
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

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrExperimentRequired) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowHasCycle) ||
		errors.Is(err, ErrWorkflowEmpty) ||
		errors.Is(err, catalog.ErrInvalidNode) ||
		errors.Is(err, catalog.ErrNoTemplates)
}

// IsParseError checks if an error stems from a malformed document.
func IsParseError(err error) bool {
	var parseErr *models.ParseError

	return errors.As(err, &parseErr)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}
