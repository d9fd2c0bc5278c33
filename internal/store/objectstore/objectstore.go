// Package objectstore stores audio clips on S3-compatible storage or the local filesystem.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/ai-roleplay/internal/config"
)

type Store interface {
	// Put writes data under key and returns a URL clients can fetch it from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Health(ctx context.Context) error
}

// New picks the backend from STORAGE_BACKEND.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (Store, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return NewLocal(cfg.StorageLocalPath, cfg.StorageBaseURL, log)
	case "s3":
		return NewS3(ctx, S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKeyID:   cfg.S3AccessKeyID,
			SecretKey:     cfg.S3SecretKey,
			UsePathStyle:  cfg.S3UsePathStyle,
			PublicBaseURL: cfg.S3PublicBaseURL,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND=%q", cfg.StorageBackend)
	}
}

// NewKey builds a date-partitioned object key such as audio/response/2024/05/01/<uuid>.mp3.
func NewKey(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join(prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+"."+ext)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
