package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/pipeline"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/transcribe"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body. Code and Retryable are
// set for pipeline failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// writeRunError maps controller and store errors to a status code. Errors
// with a user-facing pipeline description reuse its code and message.
func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, database.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, pipeline.ErrWrongPhase):
		WriteError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, storage.ErrInvalidKey):
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled):
		return
	}

	f := pipeline.Describe(err)
	status := http.StatusInternalServerError
	switch f.Code {
	case pipeline.CodeInsufficientBalance:
		status = http.StatusPaymentRequired
	case pipeline.CodeInvalidInput, pipeline.CodeInputTooLong, pipeline.CodeUnsupportedLocale, pipeline.CodeParseFailure:
		status = http.StatusBadRequest
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	WriteJSON(w, status, ErrorResponse{Error: f.Message, Detail: detailFor(err), Code: f.Code, Retryable: f.Retryable})
}

// detailFor exposes validation messages, which carry no provider data.
func detailFor(err error) string {
	switch {
	case errors.Is(err, dialogue.ErrParseFailure), errors.Is(err, transcribe.ErrNoAudio),
		errors.Is(err, transcribe.ErrUnsupportedLocale), errors.Is(err, dialogue.ErrEmptySource),
		errors.Is(err, dialogue.ErrSourceTooLong):
		return err.Error()
	}
	return ""
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination extracts limit and offset from query params with defaults.
// Returns an error if values are present but invalid.
func ParsePagination(r *http.Request) (Pagination, error) {
	p := Pagination{Limit: 50, Offset: 0}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid limit %q: must be an integer", v)
		}
		if n < 1 {
			return p, fmt.Errorf("invalid limit %d: must be >= 1", n)
		}
		p.Limit = min(n, 200)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid offset %q: must be an integer", v)
		}
		if n < 0 {
			return p, fmt.Errorf("invalid offset %d: must be >= 0", n)
		}
		p.Offset = n
	}
	return p, nil
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
