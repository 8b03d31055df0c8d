package api

import (
	"fmt"
	"strings"
)

// ErrorType represents the category of an API error. The set is closed:
// every failure the gateway reports maps to exactly one of these.
type ErrorType string

const (
	ErrorTypeConfiguration   ErrorType = "configuration_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeTransport       ErrorType = "transport_error"
	ErrorTypeUpstream        ErrorType = "upstream_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeServerError     ErrorType = "server_error"
)

// APIError is a structured error with a kind, the upstream details when the
// failure came from the vendor, and a user-facing message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`

	// Status is the upstream HTTP status, when there was one.
	Status int `json:"status,omitempty"`

	// RequestID is the upstream x-request-id, when one was seen.
	RequestID string `json:"request_id,omitempty"`

	// Timeout marks transport errors caused by the request deadline.
	Timeout bool `json:"-"`
}

// Error renders the user-facing message: the message itself, the vendor
// error type and the upstream request id when known.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Param != "" {
		fmt.Fprintf(&b, " (param: %s)", e.Param)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (Type: %s)", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (Request ID: %s)", e.RequestID)
	}
	return b.String()
}

// WithRequestID returns the error with the upstream request id attached.
func (e *APIError) WithRequestID(id string) *APIError {
	if id != "" {
		e.RequestID = id
	}
	return e
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewConfigurationError reports a gateway misconfiguration, such as a
// missing upstream API key. No upstream call is attempted.
func NewConfigurationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConfiguration,
		Message: message,
	}
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewTransportError reports a failure to reach the upstream at all.
func NewTransportError(message string, timeout bool) *APIError {
	return &APIError{
		Type:    ErrorTypeTransport,
		Message: message,
		Timeout: timeout,
	}
}

// NewUpstreamError reports a non-200 upstream response. vendorType and
// message come from the vendor error envelope when present.
func NewUpstreamError(status int, vendorType, message string) *APIError {
	t := ErrorTypeUpstream
	if status == 429 {
		t = ErrorTypeTooManyRequests
	}
	return &APIError{
		Type:    t,
		Code:    vendorType,
		Status:  status,
		Message: fmt.Sprintf("HTTP %d: %s", status, message),
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}
