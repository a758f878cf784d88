package hostfuncs

import (
	stdErrors "errors"
	"io/fs"

	"github.com/bytedance/sonic"
	"github.com/reglet-dev/reglet-script/domain/entities"
)

// Error identifiers carried in ErrorResponse.Error.
const (
	ErrValidation       = "VALIDATION_ERROR"
	ErrNotFound         = "NOT_FOUND"
	ErrInternal         = "INTERNAL_ERROR"
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrIO               = "IO_ERROR"
	ErrCodeBadResource  = "BAD_RESOURCE"
)

// ErrorResponse represents a structured error returned as JSON to callers.
// Op responses embed it so every failure has the same shape.
type ErrorResponse struct {
	// Details carries error-specific fields (capability, path, kind).
	Details map[string]any `json:"details,omitempty"`

	// Error is a machine-readable error type identifier (e.g., "VALIDATION_ERROR", "INTERNAL_ERROR").
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code is a numeric error code (e.g., 400, 500).
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
// Returns nil if serialization fails (which should never happen for this simple type).
func (e ErrorResponse) ToJSON() []byte {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// Ptr returns a pointer to a copy of e, for embedding in op responses.
func (e ErrorResponse) Ptr() *ErrorResponse {
	return &e
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   ErrValidation,
		Message: message,
		Code:    400,
	}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{
		Error:   ErrNotFound,
		Message: "unknown host function: " + name,
		Code:    404,
	}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   ErrInternal,
		Message: message,
		Code:    500,
	}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else if s, ok := panicValue.(string); ok {
		msg = s
	} else {
		msg = "panic recovered"
	}
	return ErrorResponse{
		Error:   ErrInternal,
		Message: "panic: " + msg,
		Code:    500,
	}
}

// NewPermissionDeniedError creates an error response for a broker denial.
// It carries only the capability and the path the caller supplied.
func NewPermissionDeniedError(req entities.PermissionRequest) ErrorResponse {
	details := map[string]any{"capability": req.Capability().String()}
	if req.APIName() != "" {
		details["api"] = req.APIName()
	}
	msg := "permission denied: " + req.Capability().String()
	if req.Path() != "" {
		details["path"] = req.Path()
		msg += " access to " + req.Path()
	}
	return ErrorResponse{
		Error:   ErrPermissionDenied,
		Message: msg,
		Code:    403,
		Details: details,
	}
}

// NewBadResourceError creates an error response for an unknown resource id.
func NewBadResourceError(rid int) ErrorResponse {
	return ErrorResponse{
		Error:   ErrCodeBadResource,
		Message: "bad resource id",
		Code:    400,
		Details: map[string]any{"rid": rid},
	}
}

// NewIOError maps a backend error to an IO_ERROR response with a stable kind.
func NewIOError(err error) ErrorResponse {
	return ErrorResponse{
		Error:   ErrIO,
		Message: err.Error(),
		Code:    500,
		Details: map[string]any{"kind": ioErrorKind(err)},
	}
}

func ioErrorKind(err error) string {
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		return "NotFound"
	case stdErrors.Is(err, fs.ErrExist):
		return "AlreadyExists"
	case stdErrors.Is(err, fs.ErrPermission):
		return "PermissionDenied"
	case stdErrors.Is(err, fs.ErrClosed):
		return "Closed"
	case stdErrors.Is(err, fs.ErrInvalid):
		return "InvalidInput"
	default:
		return "Other"
	}
}
