// Package api provides the HTTP surface of the gateway: the governed
// completions endpoint, health, and the admin endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/gateway"
	"github.com/gatewarden/gatewarden/internal/ledger"
	"github.com/gatewarden/gatewarden/internal/pii"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	gwerrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/types"
)

// Handler serves the gateway API.
type Handler struct {
	pipeline *gateway.Pipeline
	limiter  *ratelimit.Limiter
	ledger   *ledger.Ledger
	logger   *slog.Logger
	version  string
	started  time.Time
}

// NewHandler creates a Handler around the pipeline and its collaborators.
func NewHandler(p *gateway.Pipeline, l *ratelimit.Limiter, led *ledger.Ledger, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: p,
		limiter:  l,
		ledger:   led,
		logger:   logger,
		version:  version,
		started:  time.Now(),
	}
}

// piiReport is the `_pii` response field.
type piiReport struct {
	RequestFindings  []pii.ReportEntry `json:"request_findings"`
	ResponseFindings []pii.ReportEntry `json:"response_findings"`
}

// governedResponse is the upstream response augmented with governance
// fields. Field names carry a leading underscore so they cannot collide
// with provider fields.
type governedResponse struct {
	*types.ChatResponse
	Cost     float64    `json:"_cost"`
	CacheHit bool       `json:"_cache_hit,omitempty"`
	PII      *piiReport `json:"_pii,omitempty"`
}

// ChatCompletions runs one request through the governance pipeline.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, gwerrors.NewInvalidRequestError("", fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.Model == "" {
		h.writeError(w, gwerrors.NewInvalidRequestError("", "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, gwerrors.NewInvalidRequestError(req.Model, "messages must not be empty"))
		return
	}

	clientID := ratelimit.ClientFingerprint(clientIP(r), r.UserAgent())

	result, err := h.pipeline.Process(r.Context(), &req, clientID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := governedResponse{
		ChatResponse: result.Response,
		Cost:         result.Cost,
		CacheHit:     result.CacheHit,
	}
	if result.PIIEnabled {
		resp.PII = &piiReport{
			RequestFindings:  emptyIfNil(result.RequestFindings),
			ResponseFindings: emptyIfNil(result.ResponseFindings),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// Stats reports process-level gateway statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	spend, err := h.ledger.DailyTotal(r.Context(), "")
	if err != nil {
		h.logger.Warn("reading daily spend for stats failed", "error", err)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"daily_spend":    spend,
	})
}

// DailySpend returns the spend total and per-model breakdown for a day.
// Defaults to today; override with ?date=YYYY-MM-DD.
func (h *Handler) DailySpend(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")

	total, err := h.ledger.DailyTotal(r.Context(), date)
	if err != nil {
		h.writeError(w, gwerrors.NewStoreUnavailableError(fmt.Sprintf("reading daily spend: %v", err)))
		return
	}
	breakdown, err := h.ledger.ModelBreakdown(r.Context(), date)
	if err != nil {
		h.writeError(w, gwerrors.NewStoreUnavailableError(fmt.Sprintf("reading model breakdown: %v", err)))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"date":   date,
		"total":  total,
		"models": breakdown,
	})
}

// RateLimitStatus reports a client's current window usage.
// Requires ?client_id=.
func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		h.writeError(w, gwerrors.NewInvalidRequestError("", "client_id is required"))
		return
	}

	usage, err := h.limiter.Status(r.Context(), clientID)
	if err != nil {
		h.writeError(w, gwerrors.NewStoreUnavailableError(fmt.Sprintf("reading rate limit status: %v", err)))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"usage":     usage,
	})
}

// RateLimitReset clears a client's rate limit windows.
func (h *Handler) RateLimitReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ClientID == "" {
		h.writeError(w, gwerrors.NewInvalidRequestError("", "client_id is required"))
		return
	}

	if err := h.limiter.Reset(r.Context(), body.ClientID); err != nil {
		h.writeError(w, gwerrors.NewStoreUnavailableError(fmt.Sprintf("resetting rate limits: %v", err)))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"client_id": body.ClientID,
		"reset":     true,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var gwErr *gwerrors.GatewayError
	if !errors.As(err, &gwErr) {
		h.logger.Error("unclassified pipeline error", "error", err)
		gwErr = &gwerrors.GatewayError{
			StatusCode: http.StatusInternalServerError,
			Message:    "internal error",
			Type:       "internal_error",
		}
	}

	if gwErr.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(gwErr.RetryAfterSec))
	}
	for granularity, remaining := range gwErr.Remaining {
		w.Header().Set("X-RateLimit-Remaining-"+granularity, strconv.Itoa(remaining))
	}

	h.writeJSON(w, gwErr.HTTPStatusCode(), ErrorResponse{
		Error: ErrorDetail{
			Message: gwErr.Message,
			Type:    gwErr.Type,
		},
	})
}

// clientIP extracts the caller address, honoring X-Forwarded-For from a
// fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func emptyIfNil(entries []pii.ReportEntry) []pii.ReportEntry {
	if entries == nil {
		return []pii.ReportEntry{}
	}
	return entries
}
