// Package domainerr defines the typed error hierarchy used across every
// rule-engine component. Nothing below the public engine boundary panics;
// everything returns one of these types (or wraps one with %w) instead.
package domainerr

import "fmt"

// Code is a closed set of domain error classifications.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeInvariantViolated Code = "INVARIANT_VIOLATED"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeCyclicDependency  Code = "CYCLIC_DEPENDENCY"
	CodeInvalidType       Code = "INVALID_TYPE"
)

// DomainError is the general-purpose error carried by engine operations
// that fail for a reason with no dedicated error type below.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func New(code Code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// ValidationError reports a single field-level problem, used by the pack
// loader/validator when a content pack fails schema checks.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ConfigError reports a problem loading or merging process/campaign
// configuration.
type ConfigError struct {
	Component string
	Message   string
}

func NewConfigError(component, message string) *ConfigError {
	return &ConfigError{Component: component, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

// InsufficientFundsError is a policy violation, not a hard failure: the
// operation that would have charged the cost was not applied, and the
// caller may retry with allow_negative=true to proceed regardless.
type InsufficientFundsError struct {
	ProjectedTreasuryBase int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: would leave treasury_base at %d", e.ProjectedTreasuryBase)
}

// StateError reports an illegal state transition (facility/order/session).
type StateError struct {
	Subject string
	Message string
	Cause   error
}

func NewStateError(subject, message string, cause error) *StateError {
	return &StateError{Subject: subject, Message: message, Cause: cause}
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error for %s: %s", e.Subject, e.Message)
}

func (e *StateError) Unwrap() error { return e.Cause }
