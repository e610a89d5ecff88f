package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snarg/audiocast/internal/provider"
)

// ElevenLabsClient implements Synthesizer with the ElevenLabs TTS API.
type ElevenLabsClient struct {
	apiKey       string
	baseURL      string
	modelID      string
	outputFormat string
	stability    float64
	similarity   float64
	httpClient   *http.Client
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string // e.g. "eleven_multilingual_v2"
	// Stability and Similarity use -1 for the defaults (0.5 and 0.75),
	// since 0.0 is a valid setting.
	Stability  float64
	Similarity float64
	Timeout    time.Duration
}

func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Stability < 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity < 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &ElevenLabsClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		modelID: cfg.ModelID,
		// CBR MP3 frames can be concatenated without re-encoding.
		outputFormat: "mp3_44100_128",
		stability:    cfg.Stability,
		similarity:   cfg.Similarity,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ElevenLabsClient) Name() string { return "elevenlabs" }

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := provider.RequireCredential(c.Name(), "synthesize", c.apiKey); err != nil {
		return nil, err
	}
	if voiceID == "" {
		return nil, &provider.Error{Provider: c.Name(), Operation: "synthesize", Category: provider.InvalidInput, Message: "voice id is required"}
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, url.PathEscape(voiceID), c.outputFormat)
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.FromTransport(c.Name(), "synthesize", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.FromTransport(c.Name(), "synthesize", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromElevenLabs("synthesize", resp.StatusCode, data)
	}
	return data, nil
}
