package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers every API route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Governed completion surface.
	mux.HandleFunc("POST /v1/chat/completions", h.ChatCompletions)

	// Operational surface.
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Admin surface.
	mux.HandleFunc("GET /admin/spend/daily", h.DailySpend)
	mux.HandleFunc("GET /admin/ratelimit/status", h.RateLimitStatus)
	mux.HandleFunc("POST /admin/ratelimit/reset", h.RateLimitReset)
}
