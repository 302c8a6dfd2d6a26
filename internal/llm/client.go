// Package llm talks to the Anthropic Messages API on behalf of the chat
// orchestrator. It sends the persona prompt, the bounded conversation history
// and the new user message, and returns the first text block of the reply.
//
// Failures are typed so callers can tell configuration problems
// (ErrMissingCredential) from upstream ones (*StatusError, ErrEmptyResponse)
// without inspecting message strings.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/cbo-bro-backend/internal/config"
)

// APIVersion is the value of the anthropic-version header.
const APIVersion = "2023-06-01"

// Roles accepted by the Messages API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("llm: api key not configured")
	// ErrEmptyResponse is returned when the reply carries no text content.
	ErrEmptyResponse = errors.New("llm: no response content")
)

// StatusError is returned for any non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: api request failed: %d", e.Code)
}

// Message is one history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Client is a thin Messages API client. It is safe for concurrent use.
type Client struct {
	http        *resty.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	system      string
}

// Option customizes a Client.
type Option func(*Client)

// WithSystemPrompt replaces the persona prompt.
func WithSystemPrompt(s string) Option { return func(c *Client) { c.system = s } }

// WithRestyClient swaps the underlying resty client. The base URL and
// headers are still applied by New.
func WithRestyClient(rc *resty.Client) Option { return func(c *Client) { c.http = rc } }

// New builds a Client from cfg. An empty API key is accepted here; Complete
// reports ErrMissingCredential instead.
func New(cfg config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      Persona,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c.http.
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("anthropic-version", APIVersion).
		SetTimeout(timeout)
	return c
}

// Complete sends history followed by message and returns the reply text.
// The history slice is not modified.
func (c *Client) Complete(ctx context.Context, history []Message, message string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: message})

	body := messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      c.system,
		Messages:    msgs,
		Temperature: c.temperature,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetBody(&body).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return "", &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}

	var mr messagesResponse
	if err := json.Unmarshal(resp.Body(), &mr); err != nil {
		return "", fmt.Errorf("llm decode response: %w", err)
	}
	if len(mr.Content) == 0 || mr.Content[0].Text == "" {
		return "", ErrEmptyResponse
	}
	return mr.Content[0].Text, nil
}
