package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API with a remote
// audio URL. Implements SyncProvider.
type ElevenLabsClient struct {
	apiKey  string
	baseURL string
	model   string // "scribe_v1" or "scribe_v2"
	client  *http.Client
}

// pauseSplitSeconds starts a new segment when a speaker pauses this long.
const pauseSplitSeconds = 1.5

type elevenlabsResponse struct {
	LanguageCode string           `json:"language_code"`
	Text         string           `json:"text"`
	Words        []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word, spacing or audio-event entry.
type elevenlabsWord struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id"`
}

func NewElevenLabsClient(apiKey, baseURL, model string, timeout time.Duration) *ElevenLabsClient {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	if model == "" {
		model = "scribe_v1"
	}
	return &ElevenLabsClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Recognize asks ElevenLabs to fetch the audio itself and returns diarized
// segments built from word timings.
func (el *ElevenLabsClient) Recognize(ctx context.Context, req Request) (*transcript.Result, error) {
	if err := provider.RequireCredential(el.Name(), "recognize", el.apiKey); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("model_id", el.model)
	w.WriteField("cloud_storage_url", req.AudioURL)
	w.WriteField("diarize", "true")
	w.WriteField("timestamps_granularity", "word")
	w.WriteField("tag_audio_events", "false")
	if req.Locale != "" {
		w.WriteField("language_code", req.Locale)
	}
	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, el.baseURL+"/v1/speech-to-text", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(httpReq)
	if err != nil {
		return nil, provider.FromTransport(el.Name(), "recognize", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.FromTransport(el.Name(), "recognize", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.FromElevenLabs("recognize", resp.StatusCode, body)
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &provider.Error{Provider: el.Name(), Operation: "recognize", Category: provider.Unknown, Message: "malformed response", Err: err}
	}

	var words []transcript.Word
	for _, ew := range result.Words {
		if ew.Type != "word" {
			continue
		}
		words = append(words, transcript.Word{
			Text:    ew.Text,
			Start:   ew.Start,
			End:     ew.End,
			Speaker: speakerLabel(ew.SpeakerID),
		})
	}

	segs := transcript.GroupWords(words, pauseSplitSeconds)
	if len(segs) == 0 && strings.TrimSpace(result.Text) != "" {
		segs = []transcript.Segment{{Text: result.Text, Speaker: transcript.DefaultSpeaker}}
	}
	return transcript.Completed(segs, 0, el.Name()), nil
}

// speakerLabel turns "speaker_0" into "Speaker 1".
func speakerLabel(id string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "speaker_"))
	if err != nil {
		return transcript.DefaultSpeaker
	}
	return "Speaker " + strconv.Itoa(n+1)
}
