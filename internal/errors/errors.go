// Package errors defines custom error types for better error handling and debugging.
// StreamError provides context-aware error reporting with type classification.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// StreamError represents errors that occur during resolution or relaying
type StreamError struct {
	Type    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error type constants
const (
	ErrorTypeConfigurationInvalid = "CONFIGURATION_INVALID"
	ErrorTypeAPIKeyMissing        = "API_KEY_MISSING"
	ErrorTypeInvalidIdentifier    = "INVALID_IDENTIFIER"
	ErrorTypeNotFound             = "NOT_FOUND"
	ErrorTypeInvalidSource        = "INVALID_SOURCE"
	ErrorTypeProviderTerminal     = "PROVIDER_TERMINAL_ERROR"
	ErrorTypeTimeout              = "TIMEOUT"
	ErrorTypeTransientProvider    = "TRANSIENT_PROVIDER_ERROR"
	ErrorTypeRelayUpstream        = "RELAY_UPSTREAM_ERROR"
	ErrorTypeRelayClientAborted   = "RELAY_CLIENT_ABORTED"
	ErrorTypeInProgress           = "IN_PROGRESS"
	ErrorTypeDuplicateStream      = "DUPLICATE_STREAM"
	ErrorTypeInternal             = "INTERNAL"
)

// NewStreamError creates a new StreamError
func NewStreamError(errorType, message string, cause error) *StreamError {
	return &StreamError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a configuration-related error
func NewConfigurationError(message string, cause error) *StreamError {
	return NewStreamError(ErrorTypeConfigurationInvalid, message, cause)
}

// NewAPIKeyMissingError creates an API key missing error
func NewAPIKeyMissingError(service string) *StreamError {
	return NewStreamError(ErrorTypeAPIKeyMissing, fmt.Sprintf("API key missing for %s", service), nil)
}

// NewInvalidIdentifierError rejects a malformed info-hash
func NewInvalidIdentifierError(id string) *StreamError {
	return NewStreamError(ErrorTypeInvalidIdentifier, fmt.Sprintf("Invalid info-hash format: %q", id), nil)
}

// NewNotFoundError reports that no source is known for an identifier
func NewNotFoundError(message string) *StreamError {
	return NewStreamError(ErrorTypeNotFound, message, nil)
}

// NewInvalidSourceError reports bad torrent or magnet metadata
func NewInvalidSourceError(message string, cause error) *StreamError {
	return NewStreamError(ErrorTypeInvalidSource, message, cause)
}

// NewProviderTerminalError reports a job the provider will never complete
func NewProviderTerminalError(message string, cause error) *StreamError {
	return NewStreamError(ErrorTypeProviderTerminal, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *StreamError {
	return NewStreamError(ErrorTypeTimeout, fmt.Sprintf("Operation timeout: %s", operation), nil)
}

// NewTransientProviderError wraps a retryable provider failure
func NewTransientProviderError(message string, cause error) *StreamError {
	return NewStreamError(ErrorTypeTransientProvider, message, cause)
}

// NewRelayUpstreamError reports an upstream fetch failure during relaying
func NewRelayUpstreamError(message string, cause error) *StreamError {
	return NewStreamError(ErrorTypeRelayUpstream, message, cause)
}

// NewRelayClientAbortedError marks a downstream disconnect
func NewRelayClientAbortedError(cause error) *StreamError {
	return NewStreamError(ErrorTypeRelayClientAborted, "client disconnected", cause)
}

// NewInProgressError reports a job that is still downloading on the provider
func NewInProgressError(message string) *StreamError {
	return NewStreamError(ErrorTypeInProgress, message, nil)
}

// NewDuplicateStreamError reports a suppressed duplicate relay request
func NewDuplicateStreamError() *StreamError {
	return NewStreamError(ErrorTypeDuplicateStream, "identical stream already in progress", nil)
}

// TypeOf returns the StreamError type found in err's chain, or INTERNAL.
func TypeOf(err error) string {
	var se *StreamError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries a StreamError of the given type.
func Is(err error, errorType string) bool {
	return err != nil && TypeOf(err) == errorType
}

// MessageOf returns the user-facing message without the cause chain.
func MessageOf(err error) string {
	var se *StreamError
	if stderrors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

// IsRetryable reports whether a later attempt may succeed.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTimeout, ErrorTypeTransientProvider, ErrorTypeInProgress,
		ErrorTypeRelayUpstream, ErrorTypeDuplicateStream:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status returned to playback clients.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeInvalidIdentifier:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidSource:
		return http.StatusUnprocessableEntity
	case ErrorTypeProviderTerminal, ErrorTypeTransientProvider,
		ErrorTypeRelayUpstream, ErrorTypeInProgress:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeDuplicateStream:
		return http.StatusTooManyRequests
	case ErrorTypeAPIKeyMissing:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
