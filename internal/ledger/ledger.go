// Package ledger enforces spend limits and records per-day, per-model
// cost aggregates in the shared store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/store"
)

const (
	dateLayout = "2006-01-02"

	// Aggregates survive a week so yesterday's totals stay queryable
	// while stale days age out on their own.
	retention = 7 * 24 * time.Hour
)

// Decision is the outcome of a spend check.
type Decision struct {
	Allowed bool
	// Reason explains a rejection with the offending amounts, empty when
	// allowed.
	Reason string
	// EstimatedCost is the worst-case cost this request was checked
	// against, in USD.
	EstimatedCost float64
}

// ModelStats is one model's accumulated usage for a day.
type ModelStats struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Ledger checks and records request costs.
type Ledger struct {
	store    store.Store
	logger   *slog.Logger
	failOpen bool
	now      func() time.Time
}

// New creates a Ledger. When failOpen is true an unreadable daily total
// lets the request through on the per-request check alone.
func New(s store.Store, failOpen bool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, logger: logger, failOpen: failOpen, now: time.Now}
}

// SetClock overrides the time source for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) today() string {
	return l.now().UTC().Format(dateLayout)
}

func dailyKey(date string) string {
	return "cost:daily:" + date
}

func modelKey(model, date string) string {
	return fmt.Sprintf("cost:model:%s:%s", model, date)
}

// CheckCostLimits verifies estimatedCost against the per-request ceiling
// and the running daily cap. The per-request check needs no store and is
// always enforced; only the daily check can fail open.
func (l *Ledger) CheckCostLimits(ctx context.Context, estimatedCost float64, limits policy.CostLimits) (Decision, error) {
	decision := Decision{Allowed: true, EstimatedCost: estimatedCost}

	if limits.MaxPerRequest > 0 && estimatedCost > limits.MaxPerRequest {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("estimated cost $%.6f exceeds per-request limit $%.6f",
			estimatedCost, limits.MaxPerRequest)
		return decision, nil
	}

	if limits.DailyCap <= 0 {
		return decision, nil
	}

	spent, err := l.store.GetFloat(ctx, dailyKey(l.today()))
	if err != nil {
		if l.failOpen {
			l.logger.Warn("daily spend unreadable, skipping cap check", "error", err)
			return decision, nil
		}
		return Decision{}, err
	}

	if spent+estimatedCost > limits.DailyCap {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("daily spend $%.6f plus estimated $%.6f exceeds cap $%.6f",
			spent, estimatedCost, limits.DailyCap)
	}
	return decision, nil
}

// TrackRequestCost records a completed request's actual cost and token
// usage. Recording is best effort; failures are logged and never surface
// to the caller, the response has already been produced.
func (l *Ledger) TrackRequestCost(ctx context.Context, model string, inputTokens, outputTokens int, cost float64) {
	date := l.today()

	dk := dailyKey(date)
	if _, err := l.store.IncrByFloat(ctx, dk, cost); err != nil {
		l.logger.Warn("recording daily spend failed", "error", err)
		return
	}
	if err := l.store.Expire(ctx, dk, retention); err != nil {
		l.logger.Warn("refreshing daily spend ttl failed", "error", err)
	}

	mk := modelKey(model, date)
	fields := []struct {
		name  string
		delta int64
	}{
		{"requests", 1},
		{"input_tokens", int64(inputTokens)},
		{"output_tokens", int64(outputTokens)},
	}
	for _, f := range fields {
		if err := l.store.HIncrBy(ctx, mk, f.name, f.delta); err != nil {
			l.logger.Warn("recording model usage failed", "model", model, "field", f.name, "error", err)
			return
		}
	}
	if err := l.store.HIncrByFloat(ctx, mk, "cost", cost); err != nil {
		l.logger.Warn("recording model cost failed", "model", model, "error", err)
		return
	}
	if err := l.store.Expire(ctx, mk, retention); err != nil {
		l.logger.Warn("refreshing model usage ttl failed", "model", model, "error", err)
	}
}

// DailyTotal returns the accumulated spend for date (today when empty).
func (l *Ledger) DailyTotal(ctx context.Context, date string) (float64, error) {
	if date == "" {
		date = l.today()
	}
	return l.store.GetFloat(ctx, dailyKey(date))
}

// ModelBreakdown returns each model's usage for date (today when empty),
// keyed by model name.
func (l *Ledger) ModelBreakdown(ctx context.Context, date string) (map[string]ModelStats, error) {
	if date == "" {
		date = l.today()
	}

	keys, err := l.store.Keys(ctx, modelKey("*", date))
	if err != nil {
		return nil, fmt.Errorf("listing model aggregates: %w", err)
	}

	out := make(map[string]ModelStats, len(keys))
	prefix := len("cost:model:")
	suffix := len(":" + date)
	for _, key := range keys {
		fields, err := l.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		model := key[prefix : len(key)-suffix]
		out[model] = statsFromFields(fields)
	}
	return out, nil
}

func statsFromFields(fields map[string]string) ModelStats {
	var s ModelStats
	fmt.Sscan(fields["requests"], &s.Requests)
	fmt.Sscan(fields["input_tokens"], &s.InputTokens)
	fmt.Sscan(fields["output_tokens"], &s.OutputTokens)
	fmt.Sscan(fields["cost"], &s.Cost)
	return s
}
