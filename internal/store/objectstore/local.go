package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// LocalStore writes objects below basePath. Files are served by the HTTP
// router under baseURL.
type LocalStore struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
}

func NewLocal(basePath, baseURL string, log zerolog.Logger) (*LocalStore, error) {
	logger := log.With().Str("component", "local-storage").Logger()
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		basePath = "./data/audio"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	logger.Info().Str("path", basePath).Str("base_url", baseURL).Msg("local storage initialized")
	return &LocalStore{basePath: basePath, baseURL: baseURL, log: logger}, nil
}

func (l *LocalStore) BasePath() string { return l.basePath }

func (l *LocalStore) fullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	full, err := l.fullPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	l.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("object stored")
	return joinURL(l.baseURL, filepath.ToSlash(key)), nil
}

func (l *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	full, err := l.fullPath(key)
	if err != nil {
		return nil, "", err
	}
	mt, err := mimetype.DetectFile(full)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, "", err
	}
	return f, mt.String(), nil
}

func (l *LocalStore) Health(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}
