package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/storage"
)

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, h *UploadHandler, field, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, contentType, data)
	req := httptest.NewRequest("POST", "/api/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	req = req.WithContext(WithUser(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir(), "http://media.test")
	h := NewUploadHandler(store, 1, zerolog.Nop())

	t.Run("success", func(t *testing.T) {
		rec := doUpload(t, h, "file", "Meeting.MP3", "", []byte("ID3 fake mp3"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp UploadResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(resp.Key, "uploads/u1/") || !strings.HasSuffix(resp.Key, ".mp3") {
			t.Errorf("key = %q", resp.Key)
		}
		if resp.URL != "http://media.test/files/"+resp.Key {
			t.Errorf("url = %q", resp.URL)
		}
		if resp.ContentType != "audio/mpeg" || resp.Size != 12 {
			t.Errorf("resp = %+v", resp)
		}
		if !store.Exists(context.Background(), resp.Key) {
			t.Error("file not stored")
		}
	})

	t.Run("extension_from_content_type", func(t *testing.T) {
		rec := doUpload(t, h, "file", "blob", "audio/x-wav", []byte("RIFF"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `.wav"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("unsupported_type", func(t *testing.T) {
		rec := doUpload(t, h, "file", "notes.txt", "text/plain", []byte("hello"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing_file_field", func(t *testing.T) {
		rec := doUpload(t, h, "audio", "a.mp3", "", []byte("x"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("empty_file", func(t *testing.T) {
		rec := doUpload(t, h, "file", "a.mp3", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("too_large", func(t *testing.T) {
		rec := doUpload(t, h, "file", "big.mp3", "", bytes.Repeat([]byte("a"), 3<<19))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("not_multipart", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/uploads", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.Upload(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
