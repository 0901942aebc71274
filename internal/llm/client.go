package llm

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

	"github.com/MimeLyc/video-sub-translator/pkg/retry"
)

var (
	// ErrEmptyResponse is returned when the API answers without any content.
	ErrEmptyResponse = errors.New("no content in response")
	// ErrTruncated means the answer hit max_tokens; a smaller batch may fit.
	ErrTruncated = errors.New("response truncated at max tokens")
)

// Client talks to an OpenAI compatible /chat/completions endpoint.
// Safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	retry      retry.Policy
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client (its Timeout is kept as is).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

func NewClient(config *Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := &Client{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		retry: retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends one system and one user message.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: user})
	return c.Chat(ctx, messages)
}

// Chat sends messages and returns the first choice. 408, 429, 5xx,
// timeouts and empty answers are retried per the client policy.
func (c *Client) Chat(ctx context.Context, messages []Message) (*Completion, error) {
	request := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	var completion *Completion
	err := c.retry.Do(ctx, "chat completion", func(ctx context.Context) error {
		resp, err := c.post(ctx, "/chat/completions", request)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return retry.Transient(ErrEmptyResponse)
		}
		choice := resp.Choices[0]
		completion = &Completion{
			Content:      choice.Message.Content,
			Model:        resp.Model,
			FinishReason: choice.FinishReason,
			Usage:        resp.Usage,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if completion.FinishReason == "length" {
		return completion, ErrTruncated
	}
	return completion, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*chatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.config.setHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed chatResponse
	parseErr := json.Unmarshal(responseBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := retry.NewStatusError(resp, responseBody)
		if parseErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			statusErr.Body = parsed.Error.Message
		}
		return nil, statusErr
	}
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", parseErr)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, parsed.Error
	}
	return &parsed, nil
}
