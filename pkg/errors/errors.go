// Package errors provides the structured error type shared by the framework's
// caches, pools and schedulers. Errors carry a code, a derived category and
// optional component/operation context; errors.Is matches on code.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Caller contract violations
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeKeyNotFound     ErrorCode = "KEY_NOT_FOUND"
	ErrCodeQueueEmpty      ErrorCode = "QUEUE_EMPTY"

	// Resources
	ErrCodeNotServiceable ErrorCode = "NOT_SERVICEABLE"
	ErrCodeLimitExceeded  ErrorCode = "LIMIT_EXCEEDED"

	// Lifecycle
	ErrCodeAlreadyStarted        ErrorCode = "ALREADY_STARTED"
	ErrCodeNotStarted            ErrorCode = "NOT_STARTED"
	ErrCodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"

	// Internal
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
)

// ErrorCategory groups error codes.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryArgument      ErrorCategory = "argument"
	CategoryLookup        ErrorCategory = "lookup"
	CategoryResource      ErrorCategory = "resource"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

var categories = map[ErrorCode]ErrorCategory{
	ErrCodeInvalidConfig:         CategoryConfiguration,
	ErrCodeConfigValidation:      CategoryConfiguration,
	ErrCodeConfigLoad:            CategoryConfiguration,
	ErrCodeConfigSave:            CategoryConfiguration,
	ErrCodeInvalidArgument:       CategoryArgument,
	ErrCodeKeyNotFound:           CategoryLookup,
	ErrCodeQueueEmpty:            CategoryLookup,
	ErrCodeNotServiceable:        CategoryResource,
	ErrCodeLimitExceeded:         CategoryResource,
	ErrCodeAlreadyStarted:        CategoryState,
	ErrCodeNotStarted:            CategoryState,
	ErrCodeDuplicateRegistration: CategoryState,
}

// FrameworkError is a structured error with context and metadata.
type FrameworkError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *FrameworkError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a FrameworkError with the same code.
func (e *FrameworkError) Is(target error) bool {
	if fe, ok := target.(*FrameworkError); ok {
		return e.Code == fe.Code
	}
	return false
}

// String returns a detailed single-line representation for logging.
func (e *FrameworkError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("FrameworkError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error encoded as JSON.
func (e *FrameworkError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new error with its category derived from code.
func NewError(code ErrorCode, message string) *FrameworkError {
	return &FrameworkError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *FrameworkError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory returns the category for code, CategoryInternal if unknown.
func GetCategory(code ErrorCode) ErrorCategory {
	if c, ok := categories[code]; ok {
		return c
	}
	return CategoryInternal
}

// HasCode reports whether any error in err's chain is a FrameworkError with code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if fe, ok := err.(*FrameworkError); ok && fe.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CaptureStack captures the current stack trace.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.HasSuffix(frame.File, "errors/errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithDetail adds a detail entry.
func (e *FrameworkError) WithDetail(key string, value interface{}) *FrameworkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component.
func (e *FrameworkError) WithComponent(component string) *FrameworkError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *FrameworkError) WithOperation(operation string) *FrameworkError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *FrameworkError) WithCause(cause error) *FrameworkError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace.
func (e *FrameworkError) WithStack() *FrameworkError {
	e.Stack = CaptureStack(2)
	return e
}
