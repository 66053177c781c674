// Package tokenizer provides token counting for budget estimation. Counts
// are advisory, not billing-exact: when no encoding is available for a
// model the counter degrades to a len/4 heuristic instead of failing the
// request.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gatewarden/gatewarden/pkg/types"
)

// messageOverhead approximates the per-message structural tokens added by
// common chat formats.
const messageOverhead = 4

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// CountTokens returns the token count for text under the given model's
// encoding, falling back to len/4 when no encoding is available.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateRequestTokens estimates prompt tokens for a chat request: a fixed
// overhead per message plus the role and content counts, plus the top-level
// system field when present.
func EstimateRequestTokens(req *types.ChatRequest) int {
	if req == nil {
		return 0
	}

	total := 0
	for _, msg := range req.Messages {
		total += messageOverhead
		total += CountTokens(req.Model, msg.Role)
		total += CountTokens(req.Model, msg.Content)
	}
	if req.System != "" {
		total += CountTokens(req.Model, req.System)
	}
	return total
}

// CountResponseTokens returns completion tokens for a response, preferring
// the provider-reported usage and falling back to counting choice content.
func CountResponseTokens(model string, resp *types.ChatResponse) int {
	if resp == nil {
		return 0
	}
	if resp.Usage != nil && resp.Usage.CompletionTokens > 0 {
		return resp.Usage.CompletionTokens
	}
	total := 0
	for i := range resp.Choices {
		total += CountTokens(model, resp.Choices[i].Message.Content)
	}
	return total
}

func getEncoding(model string) *tiktoken.Tiktoken {
	base := normalizeModelName(model)
	if cached, ok := encodingCache.Load(base); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc = getDefaultEncoding()
	}
	if enc != nil {
		encodingCache.Store(base, enc)
	}
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

func normalizeModelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
