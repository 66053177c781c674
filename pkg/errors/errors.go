// Package errors defines the unified error types for governance decisions
// and upstream failures. Every rejection the gateway produces is one of
// these, so the HTTP layer can map them uniformly.
package errors

import (
	"fmt"
	"net/http"
)

// Error type labels surfaced in the client-facing error envelope.
const (
	TypePIIBlocked        = "pii_blocked"
	TypeCostLimitExceeded = "cost_limit_exceeded"
	TypeRateLimitExceeded = "rate_limit_exceeded"
	TypeUpstreamError     = "upstream_error"
	TypeStoreUnavailable  = "store_unavailable"
	TypeInvalidRequest    = "invalid_request_error"
)

// GatewayError is a standardized governance or upstream error.
type GatewayError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Model      string `json:"model,omitempty"`
	Retryable  bool   `json:"-"`

	// RetryAfterSec carries the Retry-After hint for rate limit rejections.
	RetryAfterSec int `json:"-"`
	// Remaining carries per-granularity remaining counts for rate limit
	// rejections, exposed as X-RateLimit-Remaining-* headers.
	Remaining map[string]int `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("[%s] %s (model=%s, code=%d)", e.Type, e.Message, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the status code to surface to the client.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// NewPIIBlockedError reports disallowed sensitive data in a request (400).
func NewPIIBlockedError(model, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypePIIBlocked,
		Model:      model,
		Retryable:  false,
	}
}

// NewCostLimitError reports a per-request or daily budget rejection (429).
func NewCostLimitError(model, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeCostLimitExceeded,
		Model:      model,
		Retryable:  false,
	}
}

// NewRateLimitError reports a sliding-window rejection (429).
func NewRateLimitError(model, message string, retryAfterSec int, remaining map[string]int) *GatewayError {
	return &GatewayError{
		StatusCode:    http.StatusTooManyRequests,
		Message:       message,
		Type:          TypeRateLimitExceeded,
		Model:         model,
		Retryable:     true,
		RetryAfterSec: retryAfterSec,
		Remaining:     remaining,
	}
}

// NewUpstreamError passes an upstream non-success status through verbatim.
func NewUpstreamError(model string, statusCode int, message string) *GatewayError {
	if statusCode <= 0 {
		statusCode = http.StatusBadGateway
	}
	return &GatewayError{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypeUpstreamError,
		Model:      model,
		Retryable:  statusCode >= 500,
	}
}

// NewStoreUnavailableError reports a shared-store failure. It is internal:
// the pipeline fails open on it and never surfaces it to clients directly.
func NewStoreUnavailableError(message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeStoreUnavailable,
		Retryable:  true,
	}
}

// NewInvalidRequestError reports a malformed client request (400).
func NewInvalidRequestError(model, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Model:      model,
		Retryable:  false,
	}
}
