package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrUnknownTool - the reasoner proposed a tool not present in the registry
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool - a tool with the same name was already registered
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrSchemaValidation - proposed arguments do not conform to the tool's input schema
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrConflict - a pending action already exists for the patient context
	ErrConflict = errors.New("conflict")

	// ErrApprovalDenied - the approval gate returned a deny decision
	ErrApprovalDenied = errors.New("approval denied")

	// ErrApprovalTimeout - no decision arrived within the approval timeout
	ErrApprovalTimeout = errors.New("approval timeout")

	// ErrSlotConflict - the slot is no longer available (already booked)
	ErrSlotConflict = errors.New("slot conflict")

	// ErrNotFound - resource not found (appointment, tool, report)
	ErrNotFound = errors.New("not found")

	// ErrOrchestration - unparsable or unusable proposal from the reasoning capability
	ErrOrchestration = errors.New("orchestration error")

	// ErrSimulationConfig - invalid simulation configuration
	ErrSimulationConfig = errors.New("invalid simulation config")

	// ErrUnavailable - system-level failure (store unreachable), distinct from domain errors
	ErrUnavailable = errors.New("service unavailable")
)
