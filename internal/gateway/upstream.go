package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	gwerrors "github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/types"
)

const completionsPath = "/v1/chat/completions"

// UpstreamClient calls the provider that actually serves completions.
type UpstreamClient interface {
	ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
}

// HTTPUpstream is the production UpstreamClient: one JSON POST per
// request, no retries. Provider errors pass through with their original
// status code and body so clients see exactly what the provider said.
type HTTPUpstream struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPUpstream creates an upstream client for baseURL. The timeout
// bounds the whole call including body read.
func NewHTTPUpstream(baseURL, apiKey string, timeout time.Duration) *HTTPUpstream {
	return &HTTPUpstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (u *HTTPUpstream) ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if u.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	httpResp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewUpstreamError(req.Model, http.StatusBadGateway,
			fmt.Sprintf("upstream unreachable: %v", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gwerrors.NewUpstreamError(req.Model, http.StatusBadGateway,
			fmt.Sprintf("reading upstream response: %v", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, gwerrors.NewUpstreamError(req.Model, httpResp.StatusCode, string(respBody))
	}

	var resp types.ChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, gwerrors.NewUpstreamError(req.Model, http.StatusBadGateway,
			fmt.Sprintf("undecodable upstream response: %v", err))
	}
	return &resp, nil
}
