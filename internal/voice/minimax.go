package voice

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snarg/audiocast/internal/provider"
)

// MiniMaxClient implements Synthesizer with the MiniMax T2A v2 API, which
// returns hex-encoded audio inside a JSON envelope.
type MiniMaxClient struct {
	apiKey     string
	groupID    string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewMiniMaxClient(apiKey, groupID, baseURL, model string, timeout time.Duration) *MiniMaxClient {
	if baseURL == "" {
		baseURL = "https://api.minimax.chat"
	}
	if model == "" {
		model = "speech-02-hd"
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &MiniMaxClient{
		apiKey:     apiKey,
		groupID:    groupID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *MiniMaxClient) Name() string { return "minimax" }

type minimaxRequest struct {
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	Stream       bool                `json:"stream"`
	VoiceSetting minimaxVoiceSetting `json:"voice_setting"`
	AudioSetting minimaxAudioSetting `json:"audio_setting"`
}

type minimaxVoiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type minimaxAudioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type minimaxResponse struct {
	Data *struct {
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
	BaseResp minimaxBaseResp `json:"base_resp"`
}

type minimaxBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

func (c *MiniMaxClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := provider.RequireCredential(c.Name(), "synthesize", c.apiKey); err != nil {
		return nil, err
	}
	if err := provider.RequireCredential(c.Name(), "synthesize", c.groupID); err != nil {
		return nil, err
	}

	body, err := json.Marshal(minimaxRequest{
		Model: c.model,
		Text:  text,
		VoiceSetting: minimaxVoiceSetting{
			VoiceID: voiceID,
			Speed:   1,
			Vol:     1,
		},
		AudioSetting: minimaxAudioSetting{
			SampleRate: 32000,
			Bitrate:    128000,
			Format:     "mp3",
			Channel:    1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/t2a_v2?GroupId=" + url.QueryEscape(c.groupID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return nil, provider.FromStatus(c.Name(), "synthesize", resp.StatusCode, data)
	}

	var mr minimaxResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return nil, &provider.Error{Provider: c.Name(), Operation: "synthesize", Category: provider.Unknown, Message: "malformed response", Err: err}
	}
	if mr.BaseResp.StatusCode != 0 {
		return nil, &provider.Error{
			Provider:  c.Name(),
			Operation: "synthesize",
			Category:  classifyMiniMaxCode(mr.BaseResp.StatusCode),
			Code:      strconv.Itoa(mr.BaseResp.StatusCode),
			Message:   mr.BaseResp.StatusMsg,
		}
	}
	if mr.Data == nil || mr.Data.Audio == "" {
		return nil, &provider.Error{Provider: c.Name(), Operation: "synthesize", Category: provider.Unknown, Message: "response carries no audio"}
	}

	audio, err := hex.DecodeString(mr.Data.Audio)
	if err != nil {
		return nil, &provider.Error{Provider: c.Name(), Operation: "synthesize", Category: provider.Unknown, Message: "audio is not valid hex", Err: err}
	}
	return audio, nil
}

// classifyMiniMaxCode maps base_resp.status_code values.
func classifyMiniMaxCode(code int) provider.Category {
	switch code {
	case 1002, 1039:
		return provider.RateLimited
	case 1004, 2049:
		return provider.InvalidCredentials
	case 1008:
		return provider.QuotaExceeded
	case 2013, 1042, 1026:
		return provider.InvalidInput
	case 1000, 1001, 1024:
		return provider.TransientNetwork
	}
	return provider.Unknown
}
