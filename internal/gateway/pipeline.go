// Package gateway runs each request through the governance pipeline:
// sensitive-data scan, admission (rate and spend), cache lookup, the
// upstream call, response scan, cost accounting, and cache write.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/cache"
	"github.com/gatewarden/gatewarden/internal/ledger"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/pii"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/pricing"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/tokenizer"
	gwerrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/types"
)

// defaultMaxOutputTokens is the worst-case completion length assumed when
// the client does not set max_tokens. Spend checks use it so an unbounded
// request cannot slip under a per-request ceiling.
const defaultMaxOutputTokens = 500

// Result is what the HTTP layer renders for an admitted request.
type Result struct {
	Response *types.ChatResponse
	// Cost is the actual cost of this request in USD, zero for cache hits.
	Cost     float64
	CacheHit bool
	// PIIEnabled reports whether scanning ran, so the response can carry
	// an explicit empty findings report rather than omitting it.
	PIIEnabled       bool
	RequestFindings  []pii.ReportEntry
	ResponseFindings []pii.ReportEntry
}

// Pipeline wires the governance stages together. All stages read the
// active policy at request time so hot reloads apply to the next request.
type Pipeline struct {
	policies policy.Provider
	scanner  *pii.Scanner
	limiter  *ratelimit.Limiter
	ledger   *ledger.Ledger
	cache    *cache.ResponseCache
	pricing  *pricing.Table
	upstream UpstreamClient
	emitter  Emitter
	logger   *slog.Logger
}

// Config collects the pipeline's collaborators.
type Config struct {
	Policies policy.Provider
	Scanner  *pii.Scanner
	Limiter  *ratelimit.Limiter
	Ledger   *ledger.Ledger
	Cache    *cache.ResponseCache
	Pricing  *pricing.Table
	Upstream UpstreamClient
	Emitter  Emitter
	Logger   *slog.Logger
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = SlogEmitter{Logger: logger}
	}
	return &Pipeline{
		policies: cfg.Policies,
		scanner:  cfg.Scanner,
		limiter:  cfg.Limiter,
		ledger:   cfg.Ledger,
		cache:    cfg.Cache,
		pricing:  cfg.Pricing,
		upstream: cfg.Upstream,
		emitter:  emitter,
		logger:   logger,
	}
}

// Process runs one request through every stage. It returns a Result for
// admitted requests and a GatewayError for rejections; exactly one
// Outcome is emitted either way.
func (p *Pipeline) Process(ctx context.Context, req *types.ChatRequest, clientID string) (*Result, error) {
	start := time.Now()
	pol := p.policies.Active()

	outcome := Outcome{
		State:    StateReceived,
		Model:    req.Model,
		ClientID: clientID,
	}
	defer func() {
		outcome.Latency = time.Since(start)
		p.emitter.Emit(outcome)
	}()

	// Request scan. A block aborts before anything is consumed or called.
	processed := req
	var requestFindings []pii.ReportEntry
	if pol.PIIDetection.Enabled {
		var err error
		processed, requestFindings, err = p.scanner.ProcessRequest(
			req, pol.PIIDetection.Action, pol.PIIDetection.Entities)
		countFindings(requestFindings, "request")
		if err != nil {
			outcome.State = StateBlockedPII
			outcome.RequestFindings = len(requestFindings)
			return nil, err
		}
		outcome.RequestFindings = len(requestFindings)
	}

	// Admission: rate windows first, then the spend estimate. A request
	// rejected on cost has still consumed rate capacity; it did reach the
	// gateway.
	decision, err := p.limiter.CheckAndAdmit(ctx, clientID, pol.RateLimits)
	if err != nil {
		return nil, gwerrors.NewStoreUnavailableError(fmt.Sprintf("rate limit check: %v", err))
	}
	if !decision.Allowed {
		metrics.RateLimitRejections.WithLabelValues(decision.Exceeded).Inc()
		outcome.State = StateRejectedRate
		return nil, gwerrors.NewRateLimitError(req.Model,
			fmt.Sprintf("rate limit exceeded: %s window is full", decision.Exceeded),
			int(decision.RetryAfter.Seconds()), decision.Remaining)
	}

	inputEstimate := tokenizer.EstimateRequestTokens(processed)
	outputWorstCase := processed.MaxTokens
	if outputWorstCase <= 0 {
		outputWorstCase = defaultMaxOutputTokens
	}
	estimatedCost := p.pricing.Cost(processed.Model, inputEstimate, outputWorstCase)

	spend, err := p.ledger.CheckCostLimits(ctx, estimatedCost, pol.CostLimits)
	if err != nil {
		return nil, gwerrors.NewStoreUnavailableError(fmt.Sprintf("spend check: %v", err))
	}
	if !spend.Allowed {
		outcome.State = StateRejectedCost
		return nil, gwerrors.NewCostLimitError(req.Model, spend.Reason)
	}

	// Cache lookup. A hit is served as-is: the stored response already
	// went through the response scan, and its cost was billed when it was
	// first produced.
	if pol.Caching.Enabled {
		if cached, ok := p.cache.Get(ctx, processed); ok {
			outcome.State = StateOutcomeEmitted
			outcome.CacheHit = true
			return &Result{
				Response:        cached,
				CacheHit:        true,
				PIIEnabled:      pol.PIIDetection.Enabled,
				RequestFindings: requestFindings,
			}, nil
		}
	}

	upstreamStart := time.Now()
	resp, err := p.upstream.ChatCompletion(ctx, processed)
	outcome.UpstreamLatency = time.Since(upstreamStart)
	if err != nil {
		outcome.State = StateUpstreamFailed
		return nil, err
	}

	var responseFindings []pii.ReportEntry
	if pol.PIIDetection.Enabled {
		resp, responseFindings = p.scanner.ProcessResponse(
			resp, pol.PIIDetection.Action, pol.PIIDetection.Entities)
		countFindings(responseFindings, "response")
		outcome.ResponseFindings = len(responseFindings)
	}

	// Accounting uses the provider's reported usage when present and the
	// local estimate otherwise.
	inputTokens := inputEstimate
	if resp.Usage != nil && resp.Usage.PromptTokens > 0 {
		inputTokens = resp.Usage.PromptTokens
	}
	outputTokens := tokenizer.CountResponseTokens(processed.Model, resp)
	actualCost := p.pricing.Cost(processed.Model, inputTokens, outputTokens)
	p.ledger.TrackRequestCost(ctx, processed.Model, inputTokens, outputTokens, actualCost)

	if pol.Caching.Enabled {
		ttl := time.Duration(pol.Caching.TTLSeconds) * time.Second
		p.cache.Set(ctx, processed, resp, ttl)
	}

	outcome.State = StateOutcomeEmitted
	outcome.Cost = actualCost
	return &Result{
		Response:         resp,
		Cost:             actualCost,
		PIIEnabled:       pol.PIIDetection.Enabled,
		RequestFindings:  requestFindings,
		ResponseFindings: responseFindings,
	}, nil
}

func countFindings(report []pii.ReportEntry, direction string) {
	for _, entry := range report {
		metrics.PIIFindings.WithLabelValues(entry.Type, direction).Inc()
	}
}
