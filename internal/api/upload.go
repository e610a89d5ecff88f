package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/audio"
	"github.com/snarg/audiocast/internal/storage"
)

// UploadHandler accepts audio files and stores them where recognition
// providers can fetch them.
type UploadHandler struct {
	assets   storage.AssetStore
	maxBytes int64
	log      zerolog.Logger
}

type UploadResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func NewUploadHandler(assets storage.AssetStore, maxUploadMB int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		assets:   assets,
		maxBytes: maxUploadMB << 20,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/uploads", h.Upload)
}

// Upload handles POST /api/v1/uploads with a multipart "file" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		WriteError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !audio.IsSupportedExt(ext) {
		ext = audio.ExtFromContentType(header.Header.Get("Content-Type"))
	}
	if ext == "" || !audio.IsSupportedExt(ext) {
		WriteErrorDetail(w, http.StatusBadRequest, "unsupported audio format", header.Filename)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "file is empty")
		return
	}

	key := storage.UploadKey(UserID(r.Context()), time.Now().UTC(), ext)
	contentType := audio.ContentTypeFromExt(ext)
	if err := h.assets.Save(r.Context(), key, data, contentType); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("upload save failed")
		WriteError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	url, err := h.assets.URL(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("upload url failed")
		WriteError(w, http.StatusInternalServerError, "failed to publish file")
		return
	}

	h.log.Info().Str("key", key).Int("bytes", len(data)).Str("store", h.assets.Type()).Msg("audio uploaded")
	WriteJSON(w, http.StatusCreated, UploadResponse{
		Key:         key,
		URL:         url,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
}
