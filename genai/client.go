// Package genai is a minimal REST client for the Gemini generateContent
// API. It covers the two calls the consultation pipeline needs: content
// generation and prompt token counting.
package genai

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

	"github.com/mamaope/legalrag/internal/tlsutil"
	"github.com/mamaope/legalrag/types"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Finish reasons reported by the API. Anything else is treated as an
// unexpected but non-fatal completion.
const (
	FinishStop       = "STOP"
	FinishMaxTokens  = "MAX_TOKENS"
	FinishSafety     = "SAFETY"
	FinishRecitation = "RECITATION"
)

// Config configures the Gemini client.
type Config struct {
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	APIKey          string        `yaml:"api_key" json:"api_key"`
	Model           string        `yaml:"model" json:"model"`
	Temperature     float32       `yaml:"temperature" json:"temperature"`
	TopP            float32       `yaml:"top_p" json:"top_p"`
	TopK            int           `yaml:"top_k" json:"top_k"`
	MaxOutputTokens int           `yaml:"max_output_tokens" json:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// Result is a successful generation outcome. FinishReason is preserved so
// callers can append truncation or filter notices.
type Result struct {
	Text         string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

type genaiPart struct {
	Text string `json:"text"`
}

type genaiContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []genaiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	CandidateCount  int     `json:"candidateCount,omitempty"`
}

type generateRequest struct {
	Contents         []genaiContent    `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type genaiCandidate struct {
	Content      genaiContent `json:"content"`
	FinishReason string       `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []genaiCandidate `json:"candidates"`
	UsageMetadata *usageMetadata   `json:"usageMetadata,omitempty"`
}

type countTokensRequest struct {
	Contents []genaiContent `json:"contents"`
}

type countTokensResponse struct {
	TotalTokens int `json:"totalTokens"`
}

type genaiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the Gemini REST API.
type Client struct {
	cfg     Config
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a Gemini client. APIKey and Model are required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("genai: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "genai"), zap.String("model", cfg.Model)),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate sends prompt as a single user turn and returns the first
// candidate. A blocked or empty response is reported as a content filter
// error so callers can tell the user to rephrase.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	body := generateRequest{
		Contents: []genaiContent{{Role: "user", Parts: []genaiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			TopK:            c.cfg.TopK,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
			CandidateCount:  1,
		},
	}

	var resp generateResponse
	if err := c.doJSON(ctx, ":generateContent", body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		c.logger.Error("response empty or blocked, no candidates returned")
		return nil, blockedError()
	}

	candidate := resp.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		c.logger.Error("candidate has no content parts",
			zap.String("finish_reason", candidate.FinishReason))
		return nil, blockedError()
	}

	result := &Result{
		Text:         strings.TrimSpace(candidate.Content.Parts[0].Text),
		FinishReason: candidate.FinishReason,
	}
	if resp.UsageMetadata != nil {
		result.PromptTokens = resp.UsageMetadata.PromptTokenCount
		result.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}

	return result, nil
}

// CountTokens returns the model's token count for text as a single user
// turn.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	body := countTokensRequest{
		Contents: []genaiContent{{Role: "user", Parts: []genaiPart{{Text: text}}}},
	}

	var resp countTokensResponse
	if err := c.doJSON(ctx, ":countTokens", body, &resp); err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}

func (c *Client) doJSON(ctx context.Context, method string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s%s", c.baseURL, c.cfg.Model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider("gemini").
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapError(resp.StatusCode, readErrMsg(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode response").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider("gemini").
			WithCause(err)
	}
	return nil
}

func blockedError() error {
	return types.NewError(types.ErrContentFiltered,
		"Content was blocked. Please rephrase your legal query with more appropriate terminology.").
		WithProvider("gemini")
}

func readErrMsg(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "unreadable error body"
	}

	var parsed genaiErrorResp
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func mapError(status int, msg string) error {
	base := func(code types.ErrorCode, retryable bool) error {
		return types.NewError(code, msg).
			WithHTTPStatus(status).
			WithRetryable(retryable).
			WithProvider("gemini")
	}

	switch status {
	case http.StatusUnauthorized:
		return base(types.ErrUnauthorized, false)
	case http.StatusForbidden:
		return base(types.ErrForbidden, false)
	case http.StatusTooManyRequests:
		return base(types.ErrRateLimited, true)
	case http.StatusBadRequest:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "limit") {
			return base(types.ErrQuotaExceeded, false)
		}
		return base(types.ErrInvalidRequest, false)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return base(types.ErrUpstreamError, true)
	default:
		return base(types.ErrUpstreamError, status >= 500)
	}
}
