package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/snarg/audiocast/internal/provider"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	apiKey string
	model  string
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := provider.RequireCredential("gemini", "complete", c.apiKey); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &provider.Error{Provider: "gemini", Operation: "complete", Category: provider.Unknown, Message: "create client", Err: err}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	result, err := client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &provider.Error{
			Provider:  "gemini",
			Operation: "complete",
			Category:  classifyGeminiError(err.Error()),
			Err:       err,
		}
	}

	var text strings.Builder
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &provider.Error{Provider: "gemini", Operation: "complete", Category: provider.Unknown, Message: "empty response"}
	}

	comp := &Completion{Text: text.String(), Model: c.model}
	if u := result.UsageMetadata; u != nil {
		comp.Usage = Usage{
			Input:  int(u.PromptTokenCount),
			Output: int(u.CandidatesTokenCount),
			Total:  int(u.TotalTokenCount),
		}
	}
	return comp, nil
}

// classifyGeminiError inspects the SDK error text; the SDK embeds the HTTP
// status and the google.rpc status name.
func classifyGeminiError(msg string) provider.Category {
	switch {
	case strings.Contains(msg, "API_KEY_INVALID"),
		strings.Contains(msg, "API key not valid"),
		strings.Contains(msg, "PERMISSION_DENIED"),
		strings.Contains(msg, "UNAUTHENTICATED"):
		return provider.InvalidCredentials
	case strings.Contains(msg, "billing"):
		return provider.QuotaExceeded
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "quota"):
		return provider.RateLimited
	case strings.Contains(msg, "INVALID_ARGUMENT"),
		strings.Contains(msg, "FAILED_PRECONDITION"):
		return provider.InvalidInput
	case strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, "DEADLINE_EXCEEDED"),
		strings.Contains(msg, "INTERNAL"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "503"):
		return provider.TransientNetwork
	}
	return provider.Unknown
}
