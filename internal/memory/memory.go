// Package memory keeps the recent turns of each chat session close at hand.
// The database stays the source of truth; the cache is rebuilt from it on a miss.
package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
)

const DefaultTTL = 24 * time.Hour

// ContextStore is satisfied by *redisstore.Store.
type ContextStore interface {
	AppendContext(ctx context.Context, userID uint64, sessionID string, maxLen int, ttl time.Duration, items ...string) error
	ReplaceContext(ctx context.Context, userID uint64, sessionID string, ttl time.Duration, items ...string) error
	RecentContext(ctx context.Context, userID uint64, sessionID string, limit int) ([]string, error)
	ClearContext(ctx context.Context, userID uint64, sessionID string) error
}

// Loader returns the last limit messages of a session from the database, oldest first.
type Loader func(ctx context.Context, limit int) ([]ai.Message, error)

type Memory struct {
	store  ContextStore
	window int
	ttl    time.Duration
	log    zerolog.Logger
}

// New returns a Memory over store. A nil store disables caching and every read goes to the loader.
func New(store ContextStore, window int, ttl time.Duration, log zerolog.Logger) *Memory {
	if window <= 0 {
		window = 20
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{store: store, window: window, ttl: ttl, log: log}
}

func (m *Memory) Window() int { return m.window }

// Recent returns the last window messages, oldest first. A cache miss or
// cache failure falls back to load, and a successful load re-warms the cache.
func (m *Memory) Recent(ctx context.Context, userID uint64, sessionID string, load Loader) ([]ai.Message, error) {
	if m.store != nil {
		items, err := m.store.RecentContext(ctx, userID, sessionID, m.window)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("short-term memory read failed")
		} else if len(items) > 0 {
			if msgs, ok := m.decode(items, sessionID); ok {
				return msgs, nil
			}
		}
	}

	msgs, err := load(ctx, m.window)
	if err != nil {
		return nil, err
	}
	if m.store != nil && len(msgs) > 0 {
		if err := m.store.ReplaceContext(ctx, userID, sessionID, m.ttl, encode(msgs)...); err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("short-term memory warm failed")
		}
	}
	return msgs, nil
}

// Append adds persisted messages to a warm cache entry.
func (m *Memory) Append(ctx context.Context, userID uint64, sessionID string, msgs ...ai.Message) {
	if m.store == nil || len(msgs) == 0 {
		return
	}
	if err := m.store.AppendContext(ctx, userID, sessionID, m.window, m.ttl, encode(msgs)...); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("short-term memory append failed")
	}
}

// Clear drops the cached turns. Persisted messages are untouched.
func (m *Memory) Clear(ctx context.Context, userID uint64, sessionID string) error {
	if m.store == nil {
		return nil
	}
	return m.store.ClearContext(ctx, userID, sessionID)
}

func encode(msgs []ai.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		out = append(out, string(b))
	}
	return out
}

func (m *Memory) decode(items []string, sessionID string) ([]ai.Message, bool) {
	out := make([]ai.Message, 0, len(items))
	for _, it := range items {
		var msg ai.Message
		if err := json.Unmarshal([]byte(it), &msg); err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("corrupt short-term memory entry")
			return nil, false
		}
		out = append(out, msg)
	}
	return out, true
}
