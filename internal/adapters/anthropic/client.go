// Package anthropic adapts the Anthropic messages API to the core.Analyzer
// contract: one unary analysis call per record, with structured-JSON output
// parsing and transient-error classification for the retry layer.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/domain/model"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Options configures the Anthropic client.
type Options struct {
	// APIKey authenticates against the messages API. Required.
	APIKey string
	// Model is the model identifier sent with every request. Required.
	Model string
	// MaxTokens caps the model's output length.
	MaxTokens int
	// Temperature controls sampling randomness.
	Temperature float64
	// BaseURL overrides the API endpoint; used by tests. Defaults to the
	// public Anthropic endpoint.
	BaseURL string
	// HTTPClient is the transport used for API calls. Defaults to a client
	// with a 60 second timeout.
	HTTPClient *http.Client
	// Logger receives request/response telemetry. Defaults to slog.Default.
	Logger *slog.Logger
}

// Client calls the Anthropic messages API and maps its output onto the
// analysis response shape.
type Client struct {
	opts Options
	now  func() time.Time
}

// New creates an Anthropic client from opts.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts, now: time.Now}, nil
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// analysisPayload is the JSON document the model is instructed to return.
type analysisPayload struct {
	Summary         string             `json:"summary"`
	Insights        []model.Insight    `json:"insights"`
	NextActions     []model.NextAction `json:"next_actions"`
	ConfidenceScore *float64           `json:"confidence_score"`
}

// Analyze sends one record to the model and decodes the structured analysis.
// Rate limiting, overload, and upstream 5xx responses come back wrapped with
// core.Transient so the batch runner knows a retry may help.
func (c *Client) Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
	start := c.now()
	reqID := uuid.NewString()

	body := messagesRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		System:      systemPrompt,
		Messages: []chatMessage{
			{Role: "user", Content: buildUserPrompt(req)},
		},
	}

	raw, status, err := c.send(ctx, reqID, body)
	if err != nil {
		return nil, err
	}

	var msg messagesResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: no text content in response (status %d)", status)
	}

	payload, err := parseAnalysis(text.String())
	if err != nil {
		return nil, err
	}

	resp := buildResponse(payload)
	resp.Metadata.ModelVersion = c.opts.Model
	resp.Metadata.ProcessingTimeMs = float64(c.now().Sub(start).Microseconds()) / 1000
	resp.Metadata.TokensUsed = msg.Usage.InputTokens + msg.Usage.OutputTokens
	resp.Metadata.Timestamp = c.now().UTC()
	return resp, nil
}

func (c *Client) send(ctx context.Context, reqID string, body messagesRequest) ([]byte, int, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("anthropic: encode request: %w", err)
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.opts.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	c.opts.Logger.Info("anthropic.request",
		"req_id", reqID,
		"model", c.opts.Model,
		"content_length", len(bs),
	)

	start := c.now()
	httpResp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		c.opts.Logger.Error("anthropic.send_error",
			"req_id", reqID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		// Transport failures (connection reset, timeout) are worth a retry.
		return nil, 0, core.Transient(fmt.Errorf("anthropic: send request: %w", err))
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.opts.Logger.Warn("anthropic.body_close_error", "req_id", reqID, "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, core.Transient(fmt.Errorf("anthropic: read response: %w", err))
	}

	c.opts.Logger.Info("anthropic.response",
		"req_id", reqID,
		"status", httpResp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if httpResp.StatusCode/100 != 2 {
		err := fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, summarizeBody(raw))
		if retryableStatus(httpResp.StatusCode) {
			return nil, httpResp.StatusCode, core.Transient(err)
		}
		return nil, httpResp.StatusCode, err
	}
	return raw, httpResp.StatusCode, nil
}

// retryableStatus reports whether the provider status indicates a condition
// that can clear on its own: rate limiting, overload, or upstream 5xx.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // Anthropic "overloaded"
		return true
	}
	return false
}

func summarizeBody(raw []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseAnalysis decodes the model's output. Models occasionally wrap the JSON
// in a markdown fence or surround it with prose despite the instructions, so
// direct decoding falls back to extraction.
func parseAnalysis(text string) (*analysisPayload, error) {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		return &payload, nil
	}

	candidate := ""
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if m := bareJSONRe.FindString(text); m != "" {
		candidate = m
	}
	if candidate == "" {
		return nil, errors.New("anthropic: response contains no JSON object")
	}

	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, fmt.Errorf("anthropic: decode analysis JSON: %w", err)
	}
	return &payload, nil
}

func buildResponse(payload *analysisPayload) *model.AnalyzeResponse {
	resp := &model.AnalyzeResponse{
		Summary:     payload.Summary,
		Insights:    make([]model.Insight, 0, len(payload.Insights)),
		NextActions: make([]model.NextAction, 0, len(payload.NextActions)),
	}
	if resp.Summary == "" {
		resp.Summary = "No summary generated"
	}

	for _, in := range payload.Insights {
		if in.Title == "" {
			in.Title = "Untitled"
		}
		if in.Priority == "" {
			in.Priority = "medium"
		}
		resp.Insights = append(resp.Insights, in)
	}
	for _, action := range payload.NextActions {
		if action.Priority == "" {
			action.Priority = "medium"
		}
		resp.NextActions = append(resp.NextActions, action)
	}

	resp.Metadata.ConfidenceScore = 0.5
	if payload.ConfidenceScore != nil {
		resp.Metadata.ConfidenceScore = *payload.ConfidenceScore
	}
	return resp
}
