package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/audio"
	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/export"
	"github.com/snarg/audiocast/internal/storage"
)

// RecordReader is satisfied by *database.DB.
type RecordReader interface {
	GetRecord(ctx context.Context, id, userID string) (*database.Record, error)
	ListRecords(ctx context.Context, f database.RecordFilter) ([]database.RecordSummary, int, error)
}

type RecordsHandler struct {
	records RecordReader
	assets  storage.AssetStore
	log     zerolog.Logger
}

func NewRecordsHandler(records RecordReader, assets storage.AssetStore, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		assets:  assets,
		log:     log.With().Str("handler", "records").Logger(),
	}
}

func (h *RecordsHandler) Routes(r chi.Router) {
	r.Get("/records", h.ListRecords)
	r.Get("/records/{id}", h.GetRecord)
	r.Get("/records/{id}/audio", h.GetAudio)
	r.Get("/records/{id}/export.docx", h.ExportDocx)
}

type recordList struct {
	Records []database.RecordSummary `json:"records"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// ListRecords handles GET /api/v1/records?flow=&limit=&offset=.
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	flow, _ := QueryString(r, "flow")
	list, total, err := h.records.ListRecords(r.Context(), database.RecordFilter{
		UserID: UserID(r.Context()),
		Flow:   flow,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, recordList{Records: list, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// GetRecord handles GET /api/v1/records/{id}.
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.GetRecord(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// GetAudio handles GET /api/v1/records/{id}/audio. The S3 store answers
// with a redirect to a presigned URL; local files are streamed.
func (h *RecordsHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.GetRecord(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	if rec.AudioKey == "" {
		WriteError(w, http.StatusNotFound, "record has no audio")
		return
	}

	if h.assets.Type() == "s3" {
		url, err := h.assets.URL(r.Context(), rec.AudioKey)
		if err != nil {
			h.log.Error().Err(err).Str("key", rec.AudioKey).Msg("presign audio failed")
			WriteError(w, http.StatusInternalServerError, "audio unavailable")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.assets.Open(r.Context(), rec.AudioKey)
	if err != nil {
		h.log.Warn().Err(err).Str("key", rec.AudioKey).Msg("open audio failed")
		WriteError(w, http.StatusNotFound, "audio file not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", audio.ContentTypeFromExt(path.Ext(rec.AudioKey)))
	w.Header().Set("Content-Disposition", `inline; filename="`+rec.ID+path.Ext(rec.AudioKey)+`"`)
	io.Copy(w, rc)
}

// ExportDocx handles GET /api/v1/records/{id}/export.docx.
func (h *RecordsHandler) ExportDocx(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.GetRecord(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	tmp, err := os.MkdirTemp("", "audiocast-export-*")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "record.docx")
	if err := export.RecordDocx(rec, out); err != nil {
		if err == export.ErrEmptyRecord {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("docx export failed")
		WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.ID+`.docx"`)
	http.ServeFile(w, r, out)
}
