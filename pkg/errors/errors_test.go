package errors

import (
	"net/http"
	"strings"
	"testing"
)

func TestGatewayError_Error(t *testing.T) {
	err := NewCostLimitError("gpt-4o", "estimated cost $0.0500 exceeds per-request limit $0.03")
	msg := err.Error()
	if !strings.Contains(msg, TypeCostLimitExceeded) {
		t.Errorf("error string missing type: %s", msg)
	}
	if !strings.Contains(msg, "gpt-4o") {
		t.Errorf("error string missing model: %s", msg)
	}
}

func TestGatewayError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayError
		want int
	}{
		{"pii blocked", NewPIIBlockedError("m", "pii"), http.StatusBadRequest},
		{"cost limit", NewCostLimitError("m", "cap"), http.StatusTooManyRequests},
		{"rate limit", NewRateLimitError("m", "slow down", 60, nil), http.StatusTooManyRequests},
		{"upstream passthrough", NewUpstreamError("m", 503, "overloaded"), http.StatusServiceUnavailable},
		{"upstream unreachable", NewUpstreamError("m", 0, "connection refused"), http.StatusBadGateway},
		{"invalid request", NewInvalidRequestError("m", "bad json"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGatewayError_Retryable(t *testing.T) {
	if NewPIIBlockedError("m", "x").Retryable {
		t.Error("pii block must not be retryable")
	}
	if !NewRateLimitError("m", "x", 60, nil).Retryable {
		t.Error("rate limit should be retryable")
	}
	if NewUpstreamError("m", 400, "x").Retryable {
		t.Error("upstream 4xx should not be retryable")
	}
	if !NewUpstreamError("m", 500, "x").Retryable {
		t.Error("upstream 5xx should be retryable")
	}
}
