// Package errors provides the structured error type returned by the bridge, with error codes, categories, native status codes and diagnostic context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for bridge operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Lifecycle errors
	ErrCodeInitializationFailed ErrorCode = "INITIALIZATION_FAILED"
	ErrCodeInvalidState         ErrorCode = "INVALID_STATE"

	// Native library errors
	ErrCodeNativeError ErrorCode = "NATIVE_ERROR"

	// I/O errors
	ErrCodeShortWriteStall ErrorCode = "SHORT_WRITE_STALL"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Backend errors surfaced inside native implementations
	ErrCodeBackendTransient ErrorCode = "BACKEND_TRANSIENT"
	ErrCodeBackendFailure   ErrorCode = "BACKEND_FAILURE"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryLifecycle     ErrorCategory = "lifecycle"
	CategoryNative        ErrorCategory = "native"
	CategoryIO            ErrorCategory = "io"
	CategoryBackend       ErrorCategory = "backend"
	CategoryInternal      ErrorCategory = "internal"
)

// Param is one key/value pair of diagnostic context. Params keep the order
// in which they were added so messages read the same way every time.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BridgeError is the error returned by every bridge operation.
type BridgeError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Errno is the native status verbatim (negative errno), zero when the
	// error did not originate in a native call.
	Errno int32 `json:"errno,omitempty"`

	Params    []Param   `json:"params,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	var b strings.Builder
	switch {
	case e.Component != "" && e.Operation != "":
		fmt.Fprintf(&b, "[%s:%s] ", e.Component, e.Operation)
	case e.Component != "":
		fmt.Fprintf(&b, "[%s] ", e.Component)
	case e.Operation != "":
		fmt.Fprintf(&b, "[%s] ", e.Operation)
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Diagnostic())
	if e.Errno != 0 {
		fmt.Fprintf(&b, " (errcode %d)", e.Errno)
	}
	return b.String()
}

// Diagnostic returns the message followed by the formatted parameters,
// e.g. "no such file or directory;fh=0x1f;pos=0".
func (e *BridgeError) Diagnostic() string {
	if len(e.Params) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Params)+1)
	parts = append(parts, e.Message)
	for _, p := range e.Params {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return strings.Join(parts, ";")
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is matches another BridgeError by code, or a syscall.Errno against the
// native status carried by the error.
func (e *BridgeError) Is(target error) bool {
	switch t := target.(type) {
	case *BridgeError:
		return e.Code == t.Code
	case syscall.Errno:
		return e.Errno != 0 && syscall.Errno(-e.Errno) == t
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *BridgeError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("Errno=%d", e.Errno))
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	for _, p := range e.Params {
		parts = append(parts, fmt.Sprintf("%s=%s", p.Key, p.Value))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("BridgeError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *BridgeError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new bridge error with default values.
func NewError(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// NewNativeError creates an error for a failed native call. The message is
// the system description of the errno carried by status.
func NewNativeError(operation string, status int32) *BridgeError {
	err := NewError(ErrCodeNativeError, StatusText(status))
	err.Errno = status
	err.Operation = operation
	return err
}

// StatusText describes a native status code.
func StatusText(status int32) string {
	switch {
	case status < 0:
		return syscall.Errno(-status).Error()
	case status == 0:
		return "success"
	default:
		return fmt.Sprintf("unexpected native status %d", status)
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "INITIALIZATION_") || strings.HasPrefix(codeStr, "INVALID_STATE"):
		return CategoryLifecycle
	case strings.HasPrefix(codeStr, "NATIVE_"):
		return CategoryNative
	case strings.HasPrefix(codeStr, "SHORT_WRITE") || strings.HasPrefix(codeStr, "INVALID_ARGUMENT"):
		return CategoryIO
	case strings.HasPrefix(codeStr, "BACKEND_"):
		return CategoryBackend
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	return code == ErrCodeBackendTransient
}

// WithParam appends a diagnostic parameter.
func (e *BridgeError) WithParam(key string, value any) *BridgeError {
	e.Params = append(e.Params, Param{Key: key, Value: fmt.Sprint(value)})
	return e
}

// WithComponent sets the component for an error
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *BridgeError) WithOperation(operation string) *BridgeError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// Param returns the value of the first parameter named key.
func (e *BridgeError) Param(key string) (string, bool) {
	for _, p := range e.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// HasCode reports whether err is a BridgeError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var be *BridgeError
	return stderrors.As(err, &be) && be.Code == code
}

// ErrnoOf returns the native status carried by err.
func ErrnoOf(err error) (int32, bool) {
	var be *BridgeError
	if stderrors.As(err, &be) && be.Errno != 0 {
		return be.Errno, true
	}
	return 0, false
}

// IsNotExist reports whether err carries ENOENT.
func IsNotExist(err error) bool {
	return stderrors.Is(err, syscall.ENOENT)
}

// IsExist reports whether err carries EEXIST.
func IsExist(err error) bool {
	return stderrors.Is(err, syscall.EEXIST)
}

// IsNotEmpty reports whether err carries ENOTEMPTY.
func IsNotEmpty(err error) bool {
	return stderrors.Is(err, syscall.ENOTEMPTY)
}
