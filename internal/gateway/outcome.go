package gateway

import (
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/metrics"
)

// State names a pipeline stage or terminal outcome.
type State string

// Pipeline stages, in execution order.
const (
	StateReceived         State = "RECEIVED"
	StatePIIRequestCheck  State = "PII_REQUEST_CHECK"
	StateAdmissionCheck   State = "ADMISSION_CHECK"
	StateCacheLookup      State = "CACHE_LOOKUP"
	StateUpstreamCall     State = "UPSTREAM_CALL"
	StatePIIResponseCheck State = "PII_RESPONSE_CHECK"
	StateCostAccounting   State = "COST_ACCOUNTING"
	StateCacheWrite       State = "CACHE_WRITE"
	StateOutcomeEmitted   State = "OUTCOME_EMITTED"
)

// Terminal rejection states.
const (
	StateBlockedPII     State = "BLOCKED_PII"
	StateRejectedCost   State = "REJECTED_COST"
	StateRejectedRate   State = "REJECTED_RATE"
	StateUpstreamFailed State = "UPSTREAM_FAILED"
)

// Outcome is the single per-request summary record. Every pipeline run
// emits exactly one, whatever path it took.
type Outcome struct {
	State            State
	Model            string
	ClientID         string
	Cost             float64
	CacheHit         bool
	RequestFindings  int
	ResponseFindings int
	Latency          time.Duration
	UpstreamLatency  time.Duration
}

// Emitter receives the Outcome after the pipeline finishes.
type Emitter interface {
	Emit(o Outcome)
}

// SlogEmitter writes one structured log line per outcome.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (e SlogEmitter) Emit(o Outcome) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("request outcome",
		"state", string(o.State),
		"model", o.Model,
		"client_id", o.ClientID,
		"cost", o.Cost,
		"cache_hit", o.CacheHit,
		"request_findings", o.RequestFindings,
		"response_findings", o.ResponseFindings,
		"latency_ms", o.Latency.Milliseconds(),
		"upstream_latency_ms", o.UpstreamLatency.Milliseconds(),
	)
}

// PrometheusEmitter feeds the outcome into the metric collectors.
type PrometheusEmitter struct{}

func (PrometheusEmitter) Emit(o Outcome) {
	metrics.RequestsTotal.WithLabelValues(o.Model, string(o.State)).Inc()
	if o.Cost > 0 {
		metrics.SpendUSD.WithLabelValues(o.Model).Add(o.Cost)
	}
	if o.State == StateOutcomeEmitted {
		if o.CacheHit {
			metrics.CacheHits.WithLabelValues(o.Model).Inc()
		} else {
			metrics.CacheMisses.WithLabelValues(o.Model).Inc()
		}
	}
	if o.UpstreamLatency > 0 {
		metrics.UpstreamLatency.WithLabelValues(o.Model).Observe(o.UpstreamLatency.Seconds())
	}
}

// MultiEmitter fans one outcome out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(o Outcome) {
	for _, e := range m {
		e.Emit(o)
	}
}
