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

	"github.com/snarg/audiocast/internal/provider"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type OpenAIConfig struct {
	// Name identifies the provider in errors and metrics. Defaults to "openai".
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &OpenAIClient{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OpenAIClient) Name() string { return c.name }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := provider.RequireCredential(c.name, "complete", c.apiKey); err != nil {
		return nil, err
	}

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.FromTransport(c.name, "complete", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.FromTransport(c.name, "complete", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &provider.Error{Provider: c.name, Operation: "complete", Category: provider.Unknown, Message: "malformed response", Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &provider.Error{Provider: c.name, Operation: "complete", Category: provider.Unknown, Message: "no choices in response"}
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:  chatResp.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			Input:  chatResp.Usage.PromptTokens,
			Output: chatResp.Usage.CompletionTokens,
			Total:  chatResp.Usage.TotalTokens,
		},
	}, nil
}

// classify maps OpenAI error codes first, then falls back to the HTTP status.
// A 429 carrying insufficient_quota means the account is out of credit, not
// throttled.
func (c *OpenAIClient) classify(status int, body []byte) error {
	pe := provider.FromStatus(c.name, "complete", status, body)

	var eb openAIErrorBody
	if json.Unmarshal(body, &eb) != nil {
		return pe
	}
	code, _ := eb.Error.Code.(string)
	if eb.Error.Message != "" {
		pe.Message = eb.Error.Message
	}
	pe.Code = code
	if pe.Code == "" {
		pe.Code = eb.Error.Type
	}

	switch {
	case code == "insufficient_quota" || eb.Error.Type == "insufficient_quota" || code == "billing_hard_limit_reached":
		pe.Category = provider.QuotaExceeded
	case code == "invalid_api_key" || eb.Error.Type == "authentication_error":
		pe.Category = provider.InvalidCredentials
	case code == "rate_limit_exceeded":
		pe.Category = provider.RateLimited
	case code == "context_length_exceeded" || code == "content_filter" || (eb.Error.Type == "invalid_request_error" && status == http.StatusBadRequest):
		pe.Category = provider.InvalidInput
	}
	return pe
}
