// Package ratelimit enforces per-client sliding-window request limits
// across three granularities at once. Windows live in the shared store so
// every gateway instance sees the same counts.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/store"
)

// Granularity names and their window lengths. The admission check walks
// them in this order; the first exhausted window rejects the request.
var windows = []struct {
	name   string
	suffix string
	length time.Duration
}{
	{"minute", "min", time.Minute},
	{"hour", "hour", time.Hour},
	{"day", "day", 24 * time.Hour},
}

// ClientFingerprint derives a stable anonymous client identity from the
// caller's address and user agent. Raw values never reach the store.
func ClientFingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Granularity that rejected the request, empty when allowed.
	Exceeded string
	// Remaining capacity per granularity after this admission. Only
	// granularities checked before a rejection are present.
	Remaining map[string]int
	// RetryAfter is a hint for the rejecting window, zero when allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects requests against per-client windows.
type Limiter struct {
	store    store.Store
	logger   *slog.Logger
	failOpen bool
}

// New creates a Limiter. When failOpen is true a store outage admits
// requests instead of rejecting them.
func New(s store.Store, failOpen bool, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: s, logger: logger, failOpen: failOpen}
}

func windowKey(clientID, suffix string) string {
	return fmt.Sprintf("ratelimit:%s:%s", clientID, suffix)
}

// CheckAndAdmit atomically admits one request for clientID against every
// configured granularity. A zero limit disables that granularity. Each
// admission writes a unique member so same-instant requests still count
// individually.
func (l *Limiter) CheckAndAdmit(ctx context.Context, clientID string, limits policy.RateLimits) (Decision, error) {
	decision := Decision{Allowed: true, Remaining: make(map[string]int, len(windows))}

	perWindow := map[string]int{
		"minute": limits.RequestsPerMinute,
		"hour":   limits.RequestsPerHour,
		"day":    limits.RequestsPerDay,
	}

	member := uuid.NewString()
	for _, w := range windows {
		limit := perWindow[w.name]
		if limit <= 0 {
			continue
		}

		admitted, remaining, err := l.store.WindowAdmit(ctx, windowKey(clientID, w.suffix), w.length, limit, member)
		if err != nil {
			if l.failOpen {
				l.logger.Warn("rate limit store unavailable, admitting request",
					"client_id", clientID, "granularity", w.name, "error", err)
				continue
			}
			return Decision{}, err
		}
		if !admitted {
			decision.Allowed = false
			decision.Exceeded = w.name
			decision.Remaining[w.name] = 0
			decision.RetryAfter = w.length
			return decision, nil
		}
		decision.Remaining[w.name] = remaining
	}

	return decision, nil
}

// Status reports current window usage for clientID without consuming
// capacity. Used by the admin surface.
func (l *Limiter) Status(ctx context.Context, clientID string) (map[string]int, error) {
	usage := make(map[string]int, len(windows))
	for _, w := range windows {
		count, err := l.store.WindowCount(ctx, windowKey(clientID, w.suffix), w.length)
		if err != nil {
			return nil, fmt.Errorf("counting %s window: %w", w.name, err)
		}
		usage[w.name] = count
	}
	return usage, nil
}

// Reset clears every window for clientID.
func (l *Limiter) Reset(ctx context.Context, clientID string) error {
	keys, err := l.store.Keys(ctx, windowKey(clientID, "*"))
	if err != nil {
		return fmt.Errorf("listing windows: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return l.store.Delete(ctx, keys...)
}
