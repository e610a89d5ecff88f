package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

// DeepgramClient calls Deepgram's pre-recorded API with a remote URL.
// Implements SyncProvider.
type DeepgramClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
			Speaker    int     `json:"speaker"`
		} `json:"utterances"`
	} `json:"results"`
}

type deepgramErrorBody struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

func NewDeepgramClient(apiKey, baseURL, model string, timeout time.Duration) *DeepgramClient {
	if baseURL == "" {
		baseURL = "https://api.deepgram.com"
	}
	if model == "" {
		model = "nova-3"
	}
	return &DeepgramClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *DeepgramClient) Name() string { return "deepgram" }

func (d *DeepgramClient) Recognize(ctx context.Context, req Request) (*transcript.Result, error) {
	if err := provider.RequireCredential(d.Name(), "recognize", d.apiKey); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("model", d.model)
	q.Set("utterances", "true")
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if req.Locale != "" {
		q.Set("language", req.Locale)
	}

	payload, _ := json.Marshal(map[string]string{"url": req.AudioURL})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/listen?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, provider.FromTransport(d.Name(), "recognize", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.FromTransport(d.Name(), "recognize", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, d.classify(resp.StatusCode, body)
	}

	var result deepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &provider.Error{Provider: d.Name(), Operation: "recognize", Category: provider.Unknown, Message: "malformed response", Err: err}
	}

	segs := make([]transcript.Segment, 0, len(result.Results.Utterances))
	for _, u := range result.Results.Utterances {
		segs = append(segs, transcript.Segment{
			Start:   u.Start,
			End:     u.End,
			Text:    u.Transcript,
			Speaker: "Speaker " + strconv.Itoa(u.Speaker+1),
		})
	}
	if len(segs) == 0 && len(result.Results.Channels) > 0 && len(result.Results.Channels[0].Alternatives) > 0 {
		segs = append(segs, transcript.Segment{
			End:  result.Metadata.Duration,
			Text: result.Results.Channels[0].Alternatives[0].Transcript,
		})
	}
	return transcript.Completed(segs, result.Metadata.Duration, d.Name()), nil
}

func (d *DeepgramClient) classify(status int, body []byte) error {
	pe := provider.FromStatus(d.Name(), "recognize", status, body)
	var eb deepgramErrorBody
	if json.Unmarshal(body, &eb) != nil {
		return pe
	}
	pe.Code = eb.ErrCode
	if eb.ErrMsg != "" {
		pe.Message = eb.ErrMsg
	}
	switch eb.ErrCode {
	case "INVALID_AUTH", "INSUFFICIENT_PERMISSIONS":
		pe.Category = provider.InvalidCredentials
	case "ASR_PAYMENT_REQUIRED", "PAYMENT_REQUIRED":
		pe.Category = provider.QuotaExceeded
	case "TOO_MANY_REQUESTS":
		pe.Category = provider.RateLimited
	case "Bad Request", "REMOTE_CONTENT_ERROR", "UNSUPPORTED_MEDIA_TYPE":
		pe.Category = provider.InvalidInput
	}
	return pe
}
