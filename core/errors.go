package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Tool-related errors
	ErrUnknownTool        = errors.New("unknown tool")
	ErrCircuitOpen        = errors.New("circuit open")
	ErrToolTimeout        = errors.New("tool timeout")
	ErrToolShapeInvalid   = errors.New("tool return shape invalid")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Engine-related errors
	ErrRecursionLimit = errors.New("recursion limit exceeded")
	ErrUnknownStage   = errors.New("unknown stage")

	// Agent-related errors
	ErrAgentNotFound = errors.New("agent not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Persistence errors (logged, never propagated to callers)
	ErrStoreUnavailable = errors.New("document store unavailable")
)

// OrchestrationError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type OrchestrationError struct {
	Op      string // Operation that failed (e.g., "bridge.Execute")
	Kind    string // Error kind (e.g., "tool", "stage", "memory")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *OrchestrationError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// NewOrchestrationError creates a new OrchestrationError
func NewOrchestrationError(op, kind string, err error) *OrchestrationError {
	return &OrchestrationError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if a tool-level error may succeed on a later
// attempt. Circuit-open, unknown-tool, shape, and configuration errors
// are terminal for the current call; timeouts and runtime failures are
// worth another try.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrToolShapeInvalid) ||
		IsConfigurationError(err) {
		return false
	}
	return true
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
