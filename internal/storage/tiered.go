package storage

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/audio"
)

// TieredStore combines local disk (source of truth) with S3 (durability and
// provider-facing URLs).
// Write path: save locally first, then push to S3.
// Read path: local first, S3 fallback with cache-on-read.
type TieredStore struct {
	s3    *S3Store
	local *LocalStore
	log   zerolog.Logger
}

func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

// Save writes to local disk first (fatal on failure), then S3 (warning on
// failure; the reconciler retries).
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if err := s.s3.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("S3 backup write failed, reconciler will retry")
	}
	return nil
}

// URL prefers a presigned S3 URL, which providers can reach even when the
// server itself is not public. Files the reconciler has not pushed yet are
// uploaded on demand.
func (s *TieredStore) URL(ctx context.Context, key string) (string, error) {
	if !s.s3.Exists(ctx, key) && s.local.Exists(ctx, key) {
		r, err := s.local.Open(ctx, key)
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return "", err
		}
		if err := s.s3.Save(ctx, key, data, audio.ContentTypeFromExt(path.Ext(key))); err != nil {
			return "", err
		}
	}
	return s.s3.URL(ctx, key)
}

// Open checks local disk first, then falls back to S3. On S3 hit, the file
// is cached locally for future reads.
func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := s.local.Save(ctx, key, data, ""); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache S3 file locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	if s.local.Exists(ctx, key) {
		return true
	}
	return s.s3.Exists(ctx, key)
}

func (s *TieredStore) Type() string { return "tiered" }
