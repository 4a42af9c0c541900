package errors

import (
	"fmt"
	"net/http"
)

// Code identifies a coordination outcome. Lock conflicts and queue overflow
// are expected outcomes callers branch on, not fatal conditions.
type Code string

const (
	// CodeConflict means another operation holds a blocking lock
	CodeConflict Code = "CONFLICT"
	// CodeSingletonConflict means a recreation or reconnection is already
	// in progress for the tenant; never queued
	CodeSingletonConflict Code = "SINGLETON_CONFLICT"
	// CodeQueueFull means the tenant's backlog exceeded capacity
	CodeQueueFull Code = "QUEUE_FULL"
	// CodeEscalationFailed means preemption did not free enough priority
	CodeEscalationFailed Code = "ESCALATION_FAILED"
	// CodeNotFound means release was called for an owner id with no
	// matching lock; an idempotent no-op for well-behaved callers
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidRequest means malformed input
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Recreation workflow phase failures, each triggering rollback
	CodePrepareFailed Code = "PREPARE_FAILED"
	CodeCreateFailed  Code = "CREATE_FAILED"
	CodeVerifyFailed  Code = "VERIFY_FAILED"

	// CodeInternal covers unexpected failures
	CodeInternal Code = "INTERNAL"
)

// CoordinationError is a structured error with a code and context details
type CoordinationError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CoordinationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CoordinationError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps coordination codes to HTTP status codes for the admin API
func (e *CoordinationError) HTTPStatus() int {
	switch e.Code {
	case CodeConflict, CodeSingletonConflict:
		return http.StatusConflict
	case CodeQueueFull:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeEscalationFailed:
		return http.StatusLocked
	case CodePrepareFailed, CodeCreateFailed, CodeVerifyFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new CoordinationError
func New(code Code, message string, cause error) *CoordinationError {
	return &CoordinationError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *CoordinationError) WithDetail(key string, value interface{}) *CoordinationError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common outcomes

func Conflict(tenantID, blockedBy string) *CoordinationError {
	return New(CodeConflict, fmt.Sprintf("tenant %s is locked by a %s operation", tenantID, blockedBy), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("blocked_by", blockedBy)
}

func SingletonConflict(tenantID, operation string) *CoordinationError {
	return New(CodeSingletonConflict, fmt.Sprintf("a %s is already in progress for tenant %s", operation, tenantID), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("operation", operation)
}

func QueueFull(tenantID string, capacity int) *CoordinationError {
	return New(CodeQueueFull, fmt.Sprintf("operation queue for tenant %s is at capacity (%d)", tenantID, capacity), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("capacity", capacity)
}

func EscalationFailed(tenantID string) *CoordinationError {
	return New(CodeEscalationFailed, fmt.Sprintf("escalation did not free tenant %s", tenantID), nil).
		WithDetail("tenant_id", tenantID)
}

func NotFound(tenantID, ownerID string) *CoordinationError {
	return New(CodeNotFound, fmt.Sprintf("no lock with owner %s held for tenant %s", ownerID, tenantID), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("owner_id", ownerID)
}

func InvalidRequest(reason string) *CoordinationError {
	return New(CodeInvalidRequest, reason, nil)
}

// IsCode reports whether err is a CoordinationError carrying the given code
func IsCode(err error, code Code) bool {
	ce, ok := err.(*CoordinationError)
	return ok && ce.Code == code
}

// GetCode extracts the code from an error
func GetCode(err error) Code {
	if ce, ok := err.(*CoordinationError); ok {
		return ce.Code
	}
	return CodeInternal
}
