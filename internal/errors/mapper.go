package errors

import (
	"context"
	"errors"
	"fmt"
)

// ReplyClass buckets errors for user-facing replies.
type ReplyClass string

const (
	ClassDomain      ReplyClass = "domain"      // the request was understood but cannot be satisfied
	ClassValidation  ReplyClass = "validation"  // the proposal did not pass the tool schema
	ClassApproval    ReplyClass = "approval"    // denied or timed out at the approval gate
	ClassUnavailable ReplyClass = "unavailable" // system-level failure, try again later
	ClassInternal    ReplyClass = "internal"    // everything else
)

// Category returns the taxonomy name for an error, for logs and traces.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnknownTool):
		return "UnknownToolError"
	case errors.Is(err, ErrDuplicateTool):
		return "DuplicateToolError"
	case errors.Is(err, ErrSchemaValidation):
		return "SchemaValidationError"
	case errors.Is(err, ErrConflict):
		return "ConflictError"
	case errors.Is(err, ErrApprovalDenied):
		return "ApprovalDenied"
	case errors.Is(err, ErrApprovalTimeout):
		return "ApprovalTimeout"
	case errors.Is(err, ErrSlotConflict):
		return "SlotConflictError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrOrchestration):
		return "OrchestrationError"
	case errors.Is(err, ErrSimulationConfig):
		return "SimulationConfigError"
	case errors.Is(err, ErrUnavailable):
		return "ServiceUnavailable"
	default:
		return "Unknown"
	}
}

// Classify maps an error to its user-facing reply class.
func Classify(err error) ReplyClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaValidation), errors.Is(err, ErrUnknownTool):
		return ClassValidation
	case errors.Is(err, ErrApprovalDenied), errors.Is(err, ErrApprovalTimeout):
		return ClassApproval
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return ClassDomain
	case errors.Is(err, ErrUnavailable):
		return ClassUnavailable
	default:
		return ClassInternal
	}
}

// Recoverable reports whether the orchestrator may re-prompt the reasoner for a
// corrected proposal. Domain and approval errors are never retried: the same
// proposal would fail again or, worse, duplicate a write.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrSchemaValidation) || errors.Is(err, ErrUnknownTool)
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NotFound wraps a formatted message as not found.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Conflict wraps a formatted message as a conflict.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Unavailable wraps a formatted message as a system-level failure.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnavailable)
}

// Orchestration wraps a formatted message as an orchestration failure.
func Orchestration(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrOrchestration)
}
