// Package storage keeps uploaded source audio and generated podcast audio,
// and hands out URLs that recognition providers can fetch without auth.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/config"
)

var ErrInvalidKey = errors.New("invalid storage key")

// AssetStore abstracts file storage backends.
type AssetStore interface {
	// Save stores data under key, e.g. uploads/{user}/{YYYY-MM-DD}/{uuid}.mp3.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a URL for key that is fetchable without credentials.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a file exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// New creates an AssetStore based on config. Returns the store and optional
// background services that the caller must Start/Stop. Returns an error if
// S3 is configured but unreachable.
func New(cfg config.S3Config, dir, publicBaseURL string, log zerolog.Logger) (AssetStore, []BackgroundService, error) {
	local := NewLocalStore(dir, publicBaseURL)
	if !cfg.Enabled() {
		return local, nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	tiered := NewTieredStore(s3store, local, log)
	return tiered, []BackgroundService{NewUploadReconciler(dir, s3store, log)}, nil
}

// UploadKey builds the key for a user's uploaded source audio.
func UploadKey(userID string, now time.Time, ext string) string {
	return path.Join("uploads", keySegment(userID), now.UTC().Format("2006-01-02"), uuid.NewString()+strings.ToLower(ext))
}

// PodcastKey builds the key for a run's merged podcast audio.
func PodcastKey(userID, runID string) string {
	return path.Join("podcasts", keySegment(userID), keySegment(runID)+".mp3")
}

// OwnsUpload reports whether key was produced by UploadKey for userID.
func OwnsUpload(userID, key string) bool {
	return ValidateKey(key) == nil && strings.HasPrefix(key, "uploads/"+keySegment(userID)+"/")
}

// keySegment makes s safe as a single path element.
func keySegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

// ValidateKey rejects keys that are absolute or escape the store root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	if path.Clean(key) != key {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return ErrInvalidKey
		}
	}
	return nil
}
