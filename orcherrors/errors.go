// Package orcherrors provides the orchestration core's error taxonomy
// (spec §7), adapted from the teacher's ServiceError pattern but keyed on
// the abstract kinds the spec enumerates rather than HTTP status codes.
package orcherrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the abstract error categories from spec §7.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindAccessDenied   Kind = "ACCESS_DENIED"
	KindOverflow       Kind = "OVERFLOW"
	KindRateLimited    Kind = "RATE_LIMITED"
	KindTimeout        Kind = "TIMEOUT"
	KindHandlerFailure Kind = "HANDLER_FAILURE"
	KindConditionFail  Kind = "CONDITION_FAILED"
	KindCycleDetected  Kind = "CYCLE_DETECTED"
	KindShutdown       Kind = "SHUTDOWN"
)

// OrchestratorError is the concrete error type returned across subsystem
// boundaries. Details carries structured context (e.g. nodeId, key, agentId)
// for logging; it is never serialized across the message bus.
type OrchestratorError struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]any
}

func (e *OrchestratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value to the error's Details map.
func (e *OrchestratorError) WithDetail(key string, value any) *OrchestratorError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sanitized returns an error safe to send to a remote peer: message only,
// no wrapped error, no details (spec §7 HandlerFailure propagation policy).
func (e *OrchestratorError) Sanitized() *OrchestratorError {
	return &OrchestratorError{Kind: e.Kind, Message: e.Message}
}

func New(kind Kind, message string) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *OrchestratorError { return New(KindValidation, message) }
func NotFound(message string) *OrchestratorError   { return New(KindNotFound, message) }
func AccessDenied(message string) *OrchestratorError {
	return New(KindAccessDenied, message)
}
func Overflow(message string) *OrchestratorError    { return New(KindOverflow, message) }
func RateLimited(message string) *OrchestratorError { return New(KindRateLimited, message) }
func Timeout(message string) *OrchestratorError     { return New(KindTimeout, message) }
func Shutdown(message string) *OrchestratorError    { return New(KindShutdown, message) }

func HandlerFailure(err error) *OrchestratorError {
	return Wrap(KindHandlerFailure, "handler execution failed", err)
}

func CycleDetected(cycle []string) *OrchestratorError {
	return New(KindCycleDetected, "dependency cycle detected").WithDetail("cycle", cycle)
}

// ConditionFailedError carries the evaluated condition string and its
// boolean result, per spec §4.F CONDITION handler rules.
type ConditionFailedError struct {
	Condition string
	Result    bool
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition failed: %q evaluated to %v", e.Condition, e.Result)
}

// AsOrchestratorError wraps it for callers that want a uniform error shape.
func (e *ConditionFailedError) AsOrchestratorError() *OrchestratorError {
	return New(KindConditionFail, e.Error()).WithDetail("condition", e.Condition).WithDetail("result", e.Result)
}

// Is reports whether err matches kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var oe *OrchestratorError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Kind == kind
}
