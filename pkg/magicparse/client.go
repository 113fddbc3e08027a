package magicparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AnalyzeRequest is the body of POST /api/v1/listings/analyze.
type AnalyzeRequest struct {
	Text string `json:"text,omitempty"`
	// HTML is scraped description markup, converted to text before analysis.
	HTML  string `json:"html,omitempty"`
	Title string `json:"title,omitempty"`
	// UseKnowledgeBase defaults to true.
	UseKnowledgeBase *bool `json:"useKnowledgeBase,omitempty"`
}

// AnalyzeResponse wraps one analysis.
type AnalyzeResponse struct {
	ID        string           `json:"id"`
	Result    ExtractionResult `json:"result"`
	Cached    bool             `json:"cached"`
	LatencyMs int64            `json:"latencyMs"`
}

// BatchRequest is the body of POST /api/v1/listings/analyze/batch.
type BatchRequest struct {
	Items []AnalyzeRequest `json:"items"`
}

// BatchResponse holds one entry per request item, in order. Items that could
// not be analyzed are null in Results and listed in Errors.
type BatchResponse struct {
	Results []*AnalyzeResponse `json:"results"`
	Errors  []BatchItemError   `json:"errors,omitempty"`
}

// BatchItemError reports one failed batch item.
type BatchItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// KnowledgeInfo describes the knowledge base in effect.
type KnowledgeInfo struct {
	Version  string     `json:"version,omitempty"`
	Source   string     `json:"source,omitempty"`
	Makes    int        `json:"makes"`
	Models   int        `json:"models"`
	Synonyms int        `json:"synonyms"`
	LoadedAt *time.Time `json:"loadedAt,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database,omitempty"`
	Cache     string `json:"cache,omitempty"`
	Knowledge string `json:"knowledge,omitempty"`
}

// APIError is the error body returned by the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s: %s", e.Code, e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client calls a remote listing-parser service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new listing-parser client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8085"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}
}

// Analyze analyzes one listing remotely.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/listings/analyze", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AnalyzeBatch analyzes several listings remotely.
func (c *Client) AnalyzeBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/listings/analyze/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Knowledge returns the knowledge base in effect on the server.
func (c *Client) Knowledge(ctx context.Context) (*KnowledgeInfo, error) {
	var resp KnowledgeInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/knowledge", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReloadKnowledge asks the server to reload its knowledge base. It needs an
// admin key when auth is enabled.
func (c *Client) ReloadKnowledge(ctx context.Context) (*KnowledgeInfo, error) {
	var resp KnowledgeInfo
	if err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/reload", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
