// Package llm is the client for the external understanding service. Every
// call site must treat the returned text as possibly non-conforming and
// substitute a deterministic fallback when parsing fails.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/metrics"
)

// Completion is one understanding-service response plus its usage metadata,
// consumed by the usage ledger.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Completer issues one understanding-service call.
type Completer interface {
	Complete(ctx context.Context, systemContext, userContent string) (*Completion, error)
}

// Client talks to an LLM service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	maxTokens  int
}

// NewClient builds an understanding-service client with a fixed per-call
// timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		maxTokens:  4096,
	}
}

type serviceRequest struct {
	Query       string                 `json:"query"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	Context     map[string]interface{} `json:"context"`
}

type serviceResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Metadata struct {
		InputTokens  int     `json:"input_tokens"`
		OutputTokens int     `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd"`
	} `json:"metadata"`
}

// Complete posts one query to the service. The response text is free-form;
// the caller owns structured parsing and fallback.
func (c *Client) Complete(ctx context.Context, systemContext, userContent string) (*Completion, error) {
	payload, err := json.Marshal(serviceRequest{
		Query:       userContent,
		MaxTokens:   c.maxTokens,
		Temperature: 0.0,
		Context: map[string]interface{}{
			"system_prompt": systemContext,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/agent/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("service", "error").Inc()
		return nil, fmt.Errorf("understanding service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.LLMCalls.WithLabelValues("service", "error").Inc()
		return nil, fmt.Errorf("understanding service HTTP %d", resp.StatusCode)
	}

	var parsed serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.LLMCalls.WithLabelValues("service", "error").Inc()
		return nil, fmt.Errorf("decode service response: %w", err)
	}

	metrics.LLMCalls.WithLabelValues("service", "ok").Inc()
	c.logger.Debug("Understanding service call completed",
		zap.Int("input_tokens", parsed.Metadata.InputTokens),
		zap.Int("output_tokens", parsed.Metadata.OutputTokens))

	return &Completion{
		Text:         parsed.Response,
		InputTokens:  parsed.Metadata.InputTokens,
		OutputTokens: parsed.Metadata.OutputTokens,
		CostUSD:      parsed.Metadata.CostUSD,
	}, nil
}
