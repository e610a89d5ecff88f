package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore stores files on the local filesystem and serves them under
// {publicBaseURL}/files/.
type LocalStore struct {
	dir           string
	publicBaseURL string
}

func NewLocalStore(dir, publicBaseURL string) *LocalStore {
	return &LocalStore{dir: dir, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *LocalStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(dir, ".asset-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// URL points at the server's /files route. Providers can only fetch it when
// PUBLIC_BASE_URL is reachable from the internet.
func (s *LocalStore) URL(ctx context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return s.publicBaseURL + "/files/" + key, nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalStore) Exists(ctx context.Context, key string) bool {
	full, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

func (s *LocalStore) Type() string { return "local" }

// Dir returns the storage root.
func (s *LocalStore) Dir() string { return s.dir }
