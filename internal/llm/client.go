package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
)

// ClientConfig configures the HTTP text-generation client.
type ClientConfig struct {
	// BaseURL is the provider endpoint root, e.g. http://localhost:8000.
	BaseURL string

	// Model is the model name or ID at the provider.
	Model string

	// APIKey is an optional bearer token.
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float32

	// MaxTokens caps the completion length. 0 omits the field.
	MaxTokens int

	// Timeout bounds each request end to end.
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a text-generation client. A zero Timeout defaults to 30s.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends prompt as a single user message and returns the first
// choice's content. Transport and HTTP-level failures wrap
// ErrUpstreamFailure; a 2xx body that does not carry a completion wraps
// ErrMalformedOutput.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "transport_error").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "read_error").Inc()
		return "", fmt.Errorf("%w: read body: %v", models.ErrUpstreamFailure, err)
	}

	metrics.LLMRequestDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "http_error").Inc()
		c.logger.Warn("llm request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.cfg.Model))
		return "", fmt.Errorf("%w: status %d", models.ErrUpstreamFailure, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "malformed").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrMalformedOutput, err)
	}
	if parsed.Error != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "provider_error").Inc()
		return "", fmt.Errorf("%w: %s", models.ErrUpstreamFailure, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "malformed").Inc()
		return "", fmt.Errorf("%w: empty completion", models.ErrMalformedOutput)
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "ok").Inc()
	return parsed.Choices[0].Message.Content, nil
}
