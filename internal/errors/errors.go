package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryInvalidArgument ErrorCategory = "INVALID_ARGUMENT" // Misconfiguration, rejected before any I/O
	CategoryNetwork         ErrorCategory = "NETWORK"          // Connect, send or recv failures
	CategoryProtocol        ErrorCategory = "PROTOCOL"         // Unexpected status or headers
	CategoryIO              ErrorCategory = "IO"               // Local file system issues
	CategoryTimeout         ErrorCategory = "TIMEOUT"          // No forward progress within the deadline
	CategoryContext         ErrorCategory = "CONTEXT"          // Context cancellation
	CategoryUnknown         ErrorCategory = "UNKNOWN"          // Unclassified errors
)

// Protocol identifiers
type Protocol string

const (
	ProtocolHTTP    Protocol = "HTTP"
	ProtocolGeneric Protocol = "GENERIC"
)

// DownloadError represents an error that occurred during download operations
type DownloadError struct {
	Err        error         // Original error
	Category   ErrorCategory // General category
	Protocol   Protocol      // Which protocol generated this error
	Retryable  bool          // Whether the state machine may recover by reconnecting
	Timestamp  time.Time     // When the error occurred
	Resource   string        // What resource was being accessed
	StatusCode int           // HTTP status code, zero when not applicable
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	if e.Protocol == ProtocolGeneric {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s (status: %d): %v", e.Protocol, e.Category, e.Resource, e.StatusCode, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrInvalidArgument = New("invalid argument")
	ErrInvalidURL      = New("invalid URL")
	ErrTimeout         = New("no progress within inactivity timeout")
	ErrCanceled        = New("download canceled")
)

// NewInvalidArgument creates a non-retryable configuration error
func NewInvalidArgument(err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  CategoryInvalidArgument,
		Protocol:  ProtocolGeneric,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewNetworkError creates a network-related error
func NewNetworkError(err error, resource string, retryable bool) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  CategoryNetwork,
		Protocol:  ProtocolGeneric,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewProtocolError creates an HTTP protocol error. Range servers misbehave
// transiently often enough that every protocol error is retried.
func NewProtocolError(err error, resource string, statusCode int) *DownloadError {
	return &DownloadError{
		Err:        err,
		Category:   CategoryProtocol,
		Protocol:   ProtocolHTTP,
		Retryable:  true,
		Timestamp:  time.Now(),
		Resource:   resource,
		StatusCode: statusCode,
	}
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  CategoryIO,
		Protocol:  ProtocolGeneric,
		Retryable: false, // I/O errors are generally not retryable
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewTimeoutError creates the terminal inactivity error
func NewTimeoutError(resource string, idle time.Duration) *DownloadError {
	return &DownloadError{
		Err:       fmt.Errorf("%w (idle %s)", ErrTimeout, idle.Round(time.Millisecond)),
		Category:  CategoryTimeout,
		Protocol:  ProtocolGeneric,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       fmt.Errorf("%w: %w", ErrCanceled, err),
		Category:  CategoryContext,
		Protocol:  ProtocolGeneric,
		Retryable: false,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Retryable
	}

	return false
}

// CategoryOf returns the category of err, CategoryUnknown when it carries none.
func CategoryOf(err error) ErrorCategory {
	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Category
	}
	return CategoryUnknown
}

// GetStatusCode extracts the status code from an error if available
func GetStatusCode(err error) (int, bool) {
	var downloadErr *DownloadError
	if As(err, &downloadErr) && downloadErr.StatusCode != 0 {
		return downloadErr.StatusCode, true
	}
	return 0, false
}
