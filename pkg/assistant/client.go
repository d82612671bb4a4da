// Package assistant proxies chat requests to an OpenAI-compatible chat
// completions API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/tendant/tenantctx/pkg/domain"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1024

	defaultMaxResponseBytes = 1 << 20
)

// Message roles accepted from callers. The system role is reserved for the
// configured prompt.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNoMessages       = errors.New("at least one message is required")
	ErrInvalidRole      = errors.New("message role must be user or assistant")
	ErrEmptyContent     = errors.New("message content is required")
	ErrEmptyReply       = errors.New("assistant returned no choices")
	ErrResponseTooLarge = errors.New("assistant response too large")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting from the upstream API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the assistant's answer to a conversation.
type Reply struct {
	Content string `json:"reply"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxResponseBytes caps how much of an upstream response is read.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// Client calls the chat completions endpoint.
type Client struct {
	config           Config
	httpClient       *http.Client
	maxResponseBytes int64
}

// NewClient creates a new assistant client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	c := &Client{
		config:           cfg,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		maxResponseBytes: defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Validate checks caller-supplied messages.
func Validate(messages []Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("messages[%d]: %w", i, ErrInvalidRole)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("messages[%d]: %w", i, ErrEmptyContent)
		}
	}
	return nil
}

// Chat validates messages, prepends the system prompt and returns the first
// choice. model overrides the configured default when non-empty. Upstream
// failures are returned as backend errors.
func (c *Client) Chat(ctx context.Context, messages []Message, model string) (*Reply, error) {
	if err := Validate(messages); err != nil {
		return nil, err
	}
	if model == "" {
		model = c.config.Model
	}

	req := chatCompletionRequest{
		Model:     model,
		Messages:  make([]Message, 0, len(messages)+1),
		MaxTokens: c.config.MaxTokens,
	}
	if c.config.SystemPrompt != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: c.config.SystemPrompt})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, Message{Role: m.Role, Content: removeControlChars(m.Content)})
	}

	resp, err := c.createChatCompletion(ctx, &req)
	if err != nil {
		return nil, domain.NewBackendError("assistant chat", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewBackendError("assistant chat", ErrEmptyReply)
	}

	return &Reply{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}

func (c *Client) createChatCompletion(ctx context.Context, req *chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// removeControlChars drops control characters except newline, carriage
// return and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
