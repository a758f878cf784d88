// Package errors provides domain-specific error types for the script host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail. New error types only need to implement this
// interface without modifying ToErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	// If the error is already a *ErrorDetail (entity), use it directly.
	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	// Generic error - categorize as internal
	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ErrAborted is the cause carried by a LoadError whose fetch was cancelled.
var ErrAborted = stdErrors.New("load aborted")

// PermissionDeniedError is raised when the broker denies a request.
// It carries only what the caller already supplied, never filesystem state.
type PermissionDeniedError struct {
	Path       string
	APIName    string
	Reason     string
	Capability entities.Capability
}

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("permission denied: %s", e.Capability)
	if e.Path != "" {
		msg += fmt.Sprintf(" access to %q", e.Path)
	}
	if e.APIName != "" {
		msg += fmt.Sprintf(" (%s)", e.APIName)
	}
	return msg
}

// ToErrorDetail implements DetailedError.
func (e *PermissionDeniedError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "permission_denied",
		Code:    e.Capability.String(),
		Details: map[string]any{"capability": e.Capability.String()},
	}
	if e.Path != "" {
		detail.Details["path"] = e.Path
	}
	return detail
}

// ResolutionErrorKind classifies resolver failures.
type ResolutionErrorKind string

const (
	// ResolutionMalformed means the specifier cannot be parsed.
	ResolutionMalformed ResolutionErrorKind = "malformed"
	// ResolutionNoReferrer means a relative specifier had nothing to resolve against.
	ResolutionNoReferrer ResolutionErrorKind = "no_referrer"
	// ResolutionUnsupported means the specifier form is not served by this host.
	ResolutionUnsupported ResolutionErrorKind = "unsupported"
)

// ResolutionError is raised when a specifier cannot be turned into an identity.
type ResolutionError struct {
	Kind      ResolutionErrorKind
	Specifier string
	Referrer  string
}

func (e *ResolutionError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("cannot resolve %q from %q: %s", e.Specifier, e.Referrer, e.Kind)
	}
	return fmt.Sprintf("cannot resolve %q: %s", e.Specifier, e.Kind)
}

// ToErrorDetail implements DetailedError.
func (e *ResolutionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "resolution", Code: string(e.Kind)}
}

// FetchErrorKind classifies module fetch failures.
type FetchErrorKind string

const (
	// FetchNotFound means the backend has no such module.
	FetchNotFound FetchErrorKind = "not_found"
	// FetchDenied means the broker refused the read.
	FetchDenied FetchErrorKind = "denied"
	// FetchTransient means the failure may not recur; the record stays retryable.
	FetchTransient FetchErrorKind = "transient"
	// FetchInvalid means the payload was read but is unusable.
	FetchInvalid FetchErrorKind = "invalid"
)

// FetchError is raised when a module source cannot be obtained.
type FetchError struct {
	Err      error
	Kind     FetchErrorKind
	Identity entities.ModuleIdentity
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Identity, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the fetch may be retried.
func (e *FetchError) Transient() bool {
	return e.Kind == FetchTransient
}

// ToErrorDetail implements DetailedError.
func (e *FetchError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:    e.Error(),
		Type:       "fetch",
		Code:       string(e.Kind),
		IsNotFound: e.Kind == FetchNotFound,
	}
}

// LoadError is returned to waiters whose load did not complete.
type LoadError struct {
	Err      error
	Identity entities.ModuleIdentity
	Aborted  bool
}

func (e *LoadError) Error() string {
	if e.Aborted {
		return fmt.Sprintf("load %s aborted: %v", e.Identity, e.Err)
	}
	return fmt.Sprintf("load %s failed: %v", e.Identity, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	code := "failed"
	if e.Aborted {
		code = "aborted"
	}
	return &entities.ErrorDetail{Message: e.Error(), Type: "load", Code: code}
}

// EngineErrorKind classifies engine-level failures.
type EngineErrorKind string

const (
	// EngineThrew means script code threw an uncaught exception.
	EngineThrew EngineErrorKind = "threw"
	// EngineMissingExport means the requested export does not exist.
	EngineMissingExport EngineErrorKind = "missing_export"
	// EngineTypeMismatch means an export could not be converted to the requested type.
	EngineTypeMismatch EngineErrorKind = "type_mismatch"
	// EngineInterrupted means evaluation was stopped by timeout or cancellation.
	EngineInterrupted EngineErrorKind = "interrupted"
	// EngineLoad means a module could not be resolved, fetched or evaluated.
	EngineLoad EngineErrorKind = "load"
	// EngineStartup means the engine could not be brought up.
	EngineStartup EngineErrorKind = "startup"
	// EngineDisposed means the runtime was already disposed.
	EngineDisposed EngineErrorKind = "disposed"
)

// EngineError wraps failures surfaced by the script engine.
type EngineError struct {
	Err      error
	Kind     EngineErrorKind
	Identity entities.ModuleIdentity
	Export   string
}

func (e *EngineError) Error() string {
	switch {
	case e.Export != "":
		return fmt.Sprintf("engine %s: export %q of %s: %v", e.Kind, e.Export, e.Identity, e.Err)
	case e.Identity != "":
		return fmt.Sprintf("engine %s in %s: %v", e.Kind, e.Identity, e.Err)
	default:
		return fmt.Sprintf("engine %s: %v", e.Kind, e.Err)
	}
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *EngineError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: "engine", Code: string(e.Kind)}
	if inner := ToErrorDetail(e.Err); inner != nil && inner.Type != "internal" {
		detail.Wrapped = inner
	}
	return detail
}

// ExtensionError is raised when the extension list cannot be installed.
// It is always fatal to engine startup.
type ExtensionError struct {
	Extension string
	Reason    string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %q: %s", e.Extension, e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *ExtensionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: "extension_order"}
}

// TimeoutError represents a timeout during an operation.
type TimeoutError struct {
	Operation string
	Target    string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s timeout after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Operation, IsTimeout: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// SchemaError represents a schema generation or validation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}
