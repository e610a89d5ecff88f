package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcript"
)

// Record is the immutable, client-visible result of a completed run.
type Record struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	RunID      string             `json:"run_id"`
	Flow       string             `json:"flow"`
	Locale     string             `json:"locale"`
	Title      string             `json:"title"`
	SourceText string             `json:"source_text,omitempty"`
	Transcript *transcript.Result `json:"transcript,omitempty"`
	Summary    *summarize.Result  `json:"summary,omitempty"`
	Script     []dialogue.Turn    `json:"script,omitempty"`
	AudioKey   string             `json:"audio_key,omitempty"`
	Credits    int64              `json:"credits"`
	Providers  map[string]string  `json:"providers,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// RecordSummary is the list view of a record.
type RecordSummary struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Flow      string    `json:"flow"`
	Locale    string    `json:"locale"`
	Title     string    `json:"title"`
	HasAudio  bool      `json:"has_audio"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

type RecordFilter struct {
	UserID string
	Flow   string
	Limit  int
	Offset int
}

// marshalNullable encodes v as JSON, or returns nil so the column is NULL.
func marshalNullable(v any, empty bool) (json.RawMessage, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

// InsertRecord stores r, assigning ID and CreatedAt. Each run has at most one record.
func (db *DB) InsertRecord(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tr, err := marshalNullable(r.Transcript, r.Transcript == nil)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	sum, err := marshalNullable(r.Summary, r.Summary == nil)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	script, err := marshalNullable(r.Script, len(r.Script) == 0)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	providers, err := marshalNullable(r.Providers, len(r.Providers) == 0)
	if err != nil {
		return fmt.Errorf("encode providers: %w", err)
	}

	return db.Pool.QueryRow(ctx,
		`INSERT INTO records (id, user_id, run_id, flow, locale, title, source_text,
			transcript, summary, script, audio_key, credits, providers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		r.ID, r.UserID, r.RunID, r.Flow, r.Locale, r.Title, r.SourceText,
		tr, sum, script, r.AudioKey, r.Credits, providers,
	).Scan(&r.CreatedAt)
}

// GetRecord returns the record with id owned by userID, or ErrNotFound.
func (db *DB) GetRecord(ctx context.Context, id, userID string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var r Record
	var tr, sum, script, providers []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT id::text, user_id, run_id, flow, locale, title, source_text,
			transcript, summary, script, audio_key, credits, providers, created_at
		 FROM records WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&r.ID, &r.UserID, &r.RunID, &r.Flow, &r.Locale, &r.Title, &r.SourceText,
		&tr, &sum, &script, &r.AudioKey, &r.Credits, &providers, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(tr) > 0 {
		r.Transcript = &transcript.Result{}
		if err := json.Unmarshal(tr, r.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if len(sum) > 0 {
		r.Summary = &summarize.Result{}
		if err := json.Unmarshal(sum, r.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	if len(script) > 0 {
		if err := json.Unmarshal(script, &r.Script); err != nil {
			return nil, fmt.Errorf("decode script: %w", err)
		}
	}
	if len(providers) > 0 {
		if err := json.Unmarshal(providers, &r.Providers); err != nil {
			return nil, fmt.Errorf("decode providers: %w", err)
		}
	}
	return &r, nil
}

// ListRecords returns a page of a user's records, newest first, and the total count.
func (db *DB) ListRecords(ctx context.Context, f RecordFilter) ([]RecordSummary, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var total int
	if err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM records WHERE user_id = $1 AND ($2::text IS NULL OR flow = $2)`,
		f.UserID, pqString(f.Flow),
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id::text, run_id, flow, locale, title, audio_key <> '', credits, created_at
		 FROM records WHERE user_id = $1 AND ($2::text IS NULL OR flow = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		f.UserID, pqString(f.Flow), f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []RecordSummary{}
	for rows.Next() {
		var s RecordSummary
		if err := rows.Scan(&s.ID, &s.RunID, &s.Flow, &s.Locale, &s.Title, &s.HasAudio, &s.Credits, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
