// Package pipeline runs the audio-summary and podcast flows: it sequences
// the recognition, summarization, script and voice orchestrators, publishes
// intermediate results, and owns billing and record persistence.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcribe"
	"github.com/snarg/audiocast/internal/transcript"
	"github.com/snarg/audiocast/internal/voice"
)

type Flow string

const (
	FlowAudioSummary Flow = "audio_summary"
	FlowPodcast      Flow = "podcast"
)

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseRecognizing      Phase = "recognizing"
	PhaseSummarizing      Phase = "summarizing"
	PhaseGeneratingScript Phase = "generating_script"
	PhasePreview          Phase = "preview"
	PhaseSynthesizing     Phase = "synthesizing"
	PhaseComplete         Phase = "complete"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseFailed }

// Event types published for each run.
const (
	EventPhase                = "phase"
	EventRecognitionSubmitted = "recognition_submitted"
	EventTranscript           = "transcript"
	EventSummary              = "summary"
	EventScript               = "script"
	EventTurn                 = "turn"
	EventComplete             = "complete"
	EventFailed               = "failed"
)

var (
	ErrNotFound   = errors.New("run not found")
	ErrWrongPhase = errors.New("operation not allowed in the current phase")

	errPreviewExpired = errors.New("script preview left idle past retention")
)

// Snapshot is a point-in-time copy of a run. It shares no mutable state
// with the run it was taken from.
type Snapshot struct {
	ID          string             `json:"id"`
	Flow        Flow               `json:"flow"`
	UserID      string             `json:"user_id"`
	Locale      string             `json:"locale"`
	Phase       Phase              `json:"phase"`
	Title       string             `json:"title,omitempty"`
	Transcript  *transcript.Result `json:"transcript,omitempty"`
	Summary     *summarize.Result  `json:"summary,omitempty"`
	SourceText  string             `json:"source_text,omitempty"`
	Turns       []dialogue.Turn    `json:"turns,omitempty"`
	Synthesized int                `json:"synthesized"`
	RecordID    string             `json:"record_id,omitempty"`
	Credits     int64              `json:"credits,omitempty"`
	Failure     *Failure           `json:"failure,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Recognizer is satisfied by *transcribe.Recognizer.
type Recognizer interface {
	Submit(ctx context.Context, req transcribe.Request) (*transcribe.Job, error)
	Await(ctx context.Context, job *transcribe.Job) (*transcript.Result, error)
}

// Summarizer is satisfied by *summarize.Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, in summarize.Input) (*summarize.Result, error)
}

// ScriptGenerator is satisfied by *dialogue.Generator.
type ScriptGenerator interface {
	Generate(ctx context.Context, text, locale string) (*dialogue.Script, error)
}

// VoiceSynthesizer is satisfied by *voice.Orchestrator.
type VoiceSynthesizer interface {
	Provider() string
	SynthesizeTurns(ctx context.Context, turns []dialogue.Turn, policy voice.Policy, onTurn func(i int, t dialogue.Turn)) error
}

// Ledger charges completed runs. Deduct must be idempotent per runID.
type Ledger interface {
	Deduct(ctx context.Context, userID string, amount int64, description, runID string) (remaining int64, err error)
	Refund(ctx context.Context, runID string) error
}

// RecordStore persists the artifact of a completed run.
type RecordStore interface {
	InsertRecord(ctx context.Context, r *database.Record) error
}

// AssetStore stores merged podcast audio.
type AssetStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// Publisher receives run progress, typically an events.Bus.
type Publisher interface {
	Publish(runID, userID, eventType string, payload any)
}

// Notification is sent to the Notifier when a run completes.
type Notification struct {
	RunID    string `json:"run_id"`
	RecordID string `json:"record_id"`
	UserID   string `json:"user_id"`
	Flow     Flow   `json:"flow"`
	Title    string `json:"title"`
	Credits  int64  `json:"credits"`
}

// Notifier announces completed runs to external systems, e.g. MQTT.
type Notifier interface {
	RunCompleted(ctx context.Context, n Notification) error
}

// Pricing converts usage into credits.
type Pricing interface {
	SummaryCredits(durationSeconds float64) int64
	PodcastCredits(chars int) int64
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, string, any) {}
