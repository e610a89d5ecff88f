package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/summarize"
)

type fakeRecords struct {
	records map[string]*database.Record
	filter  database.RecordFilter
}

func (f *fakeRecords) GetRecord(ctx context.Context, id, userID string) (*database.Record, error) {
	r, ok := f.records[id]
	if !ok || r.UserID != userID {
		return nil, database.ErrNotFound
	}
	return r, nil
}

func (f *fakeRecords) ListRecords(ctx context.Context, flt database.RecordFilter) ([]database.RecordSummary, int, error) {
	f.filter = flt
	var out []database.RecordSummary
	for _, r := range f.records {
		if r.UserID == flt.UserID && (flt.Flow == "" || r.Flow == flt.Flow) {
			out = append(out, database.RecordSummary{ID: r.ID, Flow: r.Flow, Title: r.Title})
		}
	}
	return out, len(out), nil
}

type fakeAccounts struct{}

func (fakeAccounts) Balance(ctx context.Context, userID string) (int64, error) { return 42, nil }
func (fakeAccounts) LedgerEntries(ctx context.Context, userID string, limit int) ([]database.LedgerEntry, error) {
	return []database.LedgerEntry{{Kind: database.EntryCredit, Amount: 50, BalanceAfter: 50}}, nil
}

func recordsFixture(t *testing.T) (*fakeRecords, *storage.LocalStore) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir(), "http://media.test")
	audioKey := storage.PodcastKey("u1", "run-p")
	store.Save(context.Background(), audioKey, []byte("mp3-bytes"), "audio/mpeg")

	return &fakeRecords{records: map[string]*database.Record{
		"rec-s": {
			ID: "rec-s", UserID: "u1", Flow: "audio_summary", Title: "Sync",
			Summary: &summarize.Result{SummaryText: "We met.", Fields: map[string]any{"keyPoints": []any{"a"}}},
		},
		"rec-p": {
			ID: "rec-p", UserID: "u1", Flow: "podcast", Title: "Bees", AudioKey: audioKey,
			Script: []dialogue.Turn{{Speaker: "A", Role: dialogue.RoleHost, Content: "Hi"}, {Speaker: "B", Role: dialogue.RoleGuest, Content: "Yo"}},
		},
	}}, store
}

func recordsRouter(h *RecordsHandler, user string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithUser(req.Context(), user)))
		})
	})
	h.Routes(r)
	NewAccountHandler(fakeAccounts{}).Routes(r)
	return r
}

func TestRecordRoutes(t *testing.T) {
	records, store := recordsFixture(t)
	h := recordsRouter(NewRecordsHandler(records, store, zerolog.Nop()), "u1")

	t.Run("list_filters_by_flow", func(t *testing.T) {
		rec := do(t, h, "GET", "/records?flow=podcast&limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if records.filter.UserID != "u1" || records.filter.Flow != "podcast" || records.filter.Limit != 10 {
			t.Errorf("filter = %+v", records.filter)
		}
		if !strings.Contains(rec.Body.String(), `"total":1`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("list_bad_pagination", func(t *testing.T) {
		if rec := do(t, h, "GET", "/records?limit=x", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("get", func(t *testing.T) {
		if rec := do(t, h, "GET", "/records/rec-s", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "We met.") {
			t.Errorf("get: %d %s", rec.Code, rec.Body.String())
		}
		other := recordsRouter(NewRecordsHandler(records, store, zerolog.Nop()), "u2")
		if rec := do(t, other, "GET", "/records/rec-s", ""); rec.Code != http.StatusNotFound {
			t.Errorf("other user status = %d", rec.Code)
		}
	})

	t.Run("audio", func(t *testing.T) {
		rec := do(t, h, "GET", "/records/rec-p/audio", "")
		if rec.Code != http.StatusOK || rec.Body.String() != "mp3-bytes" {
			t.Fatalf("audio: %d %q", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Content-Type") != "audio/mpeg" {
			t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
		}
		if rec := do(t, h, "GET", "/records/rec-s/audio", ""); rec.Code != http.StatusNotFound {
			t.Errorf("summary record audio status = %d", rec.Code)
		}
	})

	t.Run("export_docx", func(t *testing.T) {
		rec := do(t, h, "GET", "/records/rec-s/export.docx", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
		if !strings.HasPrefix(rec.Body.String(), "PK") {
			t.Error("expected a zip container")
		}
		if !strings.Contains(rec.Header().Get("Content-Disposition"), "rec-s.docx") {
			t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
		}
	})

	t.Run("account", func(t *testing.T) {
		rec := do(t, h, "GET", "/account", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"balance":42`) {
			t.Errorf("account: %d %s", rec.Code, rec.Body.String())
		}
	})
}
