// Package types defines the wire data structures for governed chat requests
// and responses. The shapes are compatible with OpenAI's Chat Completion API.
package types

import "github.com/goccy/go-json"

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is an inbound chat completion request. It is immutable once
// admitted to the pipeline; stages that rewrite content operate on a copy.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	User        string        `json:"user,omitempty"`

	// Extra holds unknown fields for pass-through to the upstream provider.
	// Extra never participates in cache key derivation.
	Extra map[string]json.RawMessage `json:"-"`
}

var chatRequestKnownFields = map[string]struct{}{
	"model":       {},
	"messages":    {},
	"system":      {},
	"max_tokens":  {},
	"temperature": {},
	"top_p":       {},
	"stream":      {},
	"user":        {},
}

// MarshalJSON merges Extra fields without overriding explicitly set fields.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type alias ChatRequest

	base, err := json.Marshal(alias(r))
	if err != nil || len(r.Extra) == 0 {
		return base, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(base, &payload); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, exists := payload[key]; !exists {
			payload[key] = value
		}
	}
	return json.Marshal(payload)
}

// UnmarshalJSON captures unknown fields into Extra for pass-through.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias ChatRequest

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	var parsed alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}

	*r = ChatRequest(parsed)
	for key := range chatRequestKnownFields {
		delete(payload, key)
	}
	if len(payload) == 0 {
		r.Extra = nil
	} else {
		r.Extra = payload
	}
	return nil
}

// Clone returns a deep copy of the request. Message rewrites on the copy
// never touch the original.
func (r *ChatRequest) Clone() *ChatRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Messages = make([]ChatMessage, len(r.Messages))
	copy(out.Messages, r.Messages)
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	if r.TopP != nil {
		p := *r.TopP
		out.TopP = &p
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// ChatResponse is an upstream chat completion response.
type ChatResponse struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Usage contains token usage statistics for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Clone returns a deep copy of the response.
func (r *ChatResponse) Clone() *ChatResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Choices = make([]Choice, len(r.Choices))
	copy(out.Choices, r.Choices)
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return &out
}
