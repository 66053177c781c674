package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/types"
)

func TestHTTPUpstream_Success(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.ChatResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
			Choices: []types.Choice{
				{Message: types.ChatMessage{Role: "assistant", Content: "pong"}, FinishReason: "stop"},
			},
			Usage: &types.Usage{PromptTokens: 4, CompletionTokens: 1, TotalTokens: 5},
		})
	}))
	defer server.Close()

	up := NewHTTPUpstream(server.URL, "sk-test", 5*time.Second)
	resp, err := up.ChatCompletion(context.Background(), &types.ChatRequest{
		Model:    "gpt-4o",
		Messages: []types.ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "pong", resp.Choices[0].Message.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestHTTPUpstream_ErrorPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	up := NewHTTPUpstream(server.URL, "", 5*time.Second)
	_, err := up.ChatCompletion(context.Background(), &types.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var gwErr *gwerrors.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.StatusCode)
	assert.Contains(t, gwErr.Message, "quota exceeded", "provider body passes through verbatim")
}

func TestHTTPUpstream_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	up := NewHTTPUpstream(server.URL, "", time.Second)
	_, err := up.ChatCompletion(context.Background(), &types.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var gwErr *gwerrors.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
}

func TestHTTPUpstream_SingleAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	up := NewHTTPUpstream(server.URL, "", 5*time.Second)
	_, err := up.ChatCompletion(context.Background(), &types.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "failures are not retried")
}
