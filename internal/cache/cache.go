// Package cache stores upstream responses keyed by a deterministic
// fingerprint of the request parameters that influence model output.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/store"
	"github.com/gatewarden/gatewarden/pkg/types"
)

const keyPrefix = "cache:"

// keyMessage is the per-message subset that feeds the fingerprint. Names
// and casing never appear in keys, only the hash does, but field order
// must stay fixed so serialization is deterministic.
type keyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// keyPayload is the canonical request subset. Sampling parameters use
// their API defaults when unset so an explicit default and an omitted
// value produce the same key. Fields the model ignores (user, stream,
// passthrough extras) are deliberately absent.
type keyPayload struct {
	MaxTokens   int          `json:"max_tokens"`
	Messages    []keyMessage `json:"messages"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature"`
	TopP        float64      `json:"top_p"`
}

// Key returns the store key for req: the prefix plus the SHA-256 hex of
// the canonical payload.
func Key(req *types.ChatRequest) string {
	payload := keyPayload{
		MaxTokens:   req.MaxTokens,
		Messages:    make([]keyMessage, 0, len(req.Messages)),
		Model:       req.Model,
		Temperature: 1.0,
		TopP:        1.0,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, keyMessage{Role: m.Role, Content: m.Content})
	}
	if req.Temperature != nil {
		payload.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		payload.TopP = *req.TopP
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// A struct of strings, ints and floats cannot fail to marshal.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// ResponseCache reads and writes serialized responses through the shared
// store. All failures degrade to cache misses; caching never rejects a
// request.
type ResponseCache struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a ResponseCache backed by s.
func New(s store.Store, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{store: s, logger: logger}
}

// Get returns the cached response for req, or ok=false on a miss. Store
// errors and undecodable entries are logged and reported as misses.
func (c *ResponseCache) Get(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, bool) {
	key := Key(req)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var resp types.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	return &resp, true
}

// Set stores resp for req with the given TTL. Write failures are logged
// and swallowed.
func (c *ResponseCache) Set(ctx context.Context, req *types.ChatRequest, resp *types.ChatResponse, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache serialize failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, Key(req), data, ttl); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}
