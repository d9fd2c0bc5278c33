// Package apilog records one row per call to an external AI service.
package apilog

import (
	"context"
	"time"
)

type APIType string

const (
	TypeLLM       APIType = "llm"
	TypeSTT       APIType = "stt"
	TypeTTS       APIType = "tts"
	TypeEmbedding APIType = "embedding"
)

// APILog is append-only.
type APILog struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID  string    `gorm:"type:varchar(64);index" json:"request_id"`
	UserID     uint64    `gorm:"index" json:"user_id"`
	APIType    APIType   `gorm:"type:varchar(16);index;not null" json:"api_type"`
	Provider   string    `gorm:"type:varchar(32);not null" json:"provider"`
	Endpoint   string    `gorm:"type:varchar(128)" json:"endpoint"`
	StatusCode int       `json:"status_code"`
	Tokens     int       `json:"tokens"`
	LatencyMS  int64     `json:"latency_ms"`
	Success    bool      `gorm:"index" json:"success"`
	Error      string    `gorm:"type:varchar(500)" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (APILog) TableName() string { return "api_logs" }

type ctxKey struct{}

type requestInfo struct {
	requestID string
	userID    uint64
}

// WithRequest attaches the request id and caller to ctx for later log rows.
func WithRequest(ctx context.Context, requestID string, userID uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestInfo{requestID: requestID, userID: userID})
}

func requestFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(ctxKey{}).(requestInfo)
	return info
}

func RequestIDFrom(ctx context.Context) string {
	return requestFrom(ctx).requestID
}
