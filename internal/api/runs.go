package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/pipeline"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/voice"
)

// RunController is satisfied by *pipeline.Controller.
type RunController interface {
	StartSummary(req pipeline.SummaryRequest) (pipeline.Snapshot, error)
	StartPodcast(req pipeline.PodcastRequest) (pipeline.Snapshot, error)
	EditScript(runID, userID string, turns []dialogue.Turn) (pipeline.Snapshot, error)
	Synthesize(ctx context.Context, runID, userID string, policy voice.Policy) (pipeline.Snapshot, error)
	Get(runID, userID string) (pipeline.Snapshot, error)
	Cancel(runID, userID string) (pipeline.Snapshot, error)
}

type RunsHandler struct {
	runs        RunController
	assets      storage.AssetStore
	voices      voice.PolicyTable
	ttsProvider string
	log         zerolog.Logger
}

func NewRunsHandler(runs RunController, assets storage.AssetStore, voices voice.PolicyTable, ttsProvider string, log zerolog.Logger) *RunsHandler {
	if voices == nil {
		voices = voice.DefaultPolicies
	}
	return &RunsHandler{
		runs:        runs,
		assets:      assets,
		voices:      voices,
		ttsProvider: ttsProvider,
		log:         log.With().Str("handler", "runs").Logger(),
	}
}

func (h *RunsHandler) Routes(r chi.Router) {
	r.Post("/summaries", h.StartSummary)
	r.Post("/podcasts", h.StartPodcast)
	r.Put("/podcasts/{id}/script", h.EditScript)
	r.Post("/podcasts/{id}/synthesize", h.Synthesize)
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/{id}/cancel", h.CancelRun)
}

type summaryRequest struct {
	AudioURL        string `json:"audio_url"`
	UploadKey       string `json:"upload_key"`
	Locale          string `json:"locale"`
	RequiredCredits int64  `json:"required_credits"`
}

type runAccepted struct {
	RunID string         `json:"run_id"`
	Phase pipeline.Phase `json:"phase"`
}

// StartSummary handles POST /api/v1/summaries.
func (h *RunsHandler) StartSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	userID := UserID(r.Context())

	audioURL := strings.TrimSpace(req.AudioURL)
	if key := strings.TrimSpace(req.UploadKey); key != "" {
		if !storage.OwnsUpload(userID, key) || !h.assets.Exists(r.Context(), key) {
			WriteError(w, http.StatusBadRequest, "unknown upload_key")
			return
		}
		url, err := h.assets.URL(r.Context(), key)
		if err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("resolve upload url failed")
			WriteError(w, http.StatusInternalServerError, "failed to publish upload")
			return
		}
		audioURL = url
	}

	snap, err := h.runs.StartSummary(pipeline.SummaryRequest{
		UserID:          userID,
		AudioURL:        audioURL,
		Locale:          req.Locale,
		RequiredCredits: req.RequiredCredits,
	})
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, runAccepted{RunID: snap.ID, Phase: snap.Phase})
}

type podcastRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale"`
}

// StartPodcast handles POST /api/v1/podcasts.
func (h *RunsHandler) StartPodcast(w http.ResponseWriter, r *http.Request) {
	var req podcastRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	snap, err := h.runs.StartPodcast(pipeline.PodcastRequest{
		UserID: UserID(r.Context()),
		Text:   req.Text,
		Locale: req.Locale,
	})
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, runAccepted{RunID: snap.ID, Phase: snap.Phase})
}

type scriptRequest struct {
	Turns []dialogue.Turn `json:"turns"`
}

// EditScript handles PUT /api/v1/podcasts/{id}/script.
func (h *RunsHandler) EditScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	snap, err := h.runs.EditScript(chi.URLParam(r, "id"), UserID(r.Context()), req.Turns)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

type synthesizeRequest struct {
	HostVoice  string `json:"host_voice"`
	GuestVoice string `json:"guest_voice"`
}

// Synthesize handles POST /api/v1/podcasts/{id}/synthesize. Voices not
// given in the body come from the configured table for the run's locale.
func (h *RunsHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}
	id := chi.URLParam(r, "id")
	userID := UserID(r.Context())

	current, err := h.runs.Get(id, userID)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	fallback, _ := h.voices.Lookup(h.ttsProvider, current.Locale)
	policy := voice.Policy{
		Host:  strings.TrimSpace(req.HostVoice),
		Guest: strings.TrimSpace(req.GuestVoice),
	}.Merge(fallback)

	snap, err := h.runs.Synthesize(r.Context(), id, userID, policy)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, runAccepted{RunID: snap.ID, Phase: snap.Phase})
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.runs.Get(chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// CancelRun handles POST /api/v1/runs/{id}/cancel.
func (h *RunsHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.runs.Cancel(chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}
