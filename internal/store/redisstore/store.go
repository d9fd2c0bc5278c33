package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// --- short-term chat context ---

func contextKey(userID uint64, sessionID string) string {
	return fmt.Sprintf("chat:ctx:%d:%s", userID, sessionID)
}

// AppendContext pushes items to the tail of an existing list, keeps the last
// maxLen and refreshes the TTL. A missing list stays missing so the next read
// rebuilds it from the database.
func (s *Store) AppendContext(ctx context.Context, userID uint64, sessionID string, maxLen int, ttl time.Duration, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	key := contextKey(userID, sessionID)
	vals := make([]any, 0, len(items))
	for _, it := range items {
		vals = append(vals, it)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPushX(ctx, key, vals...)
		pipe.LTrim(ctx, key, int64(-maxLen), -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// ReplaceContext overwrites the list with items.
func (s *Store) ReplaceContext(ctx context.Context, userID uint64, sessionID string, ttl time.Duration, items ...string) error {
	key := contextKey(userID, sessionID)
	vals := make([]any, 0, len(items))
	for _, it := range items {
		vals = append(vals, it)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(vals) > 0 {
			pipe.RPush(ctx, key, vals...)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// RecentContext returns up to limit items, oldest first. A missing key returns nil, nil.
func (s *Store) RecentContext(ctx context.Context, userID uint64, sessionID string, limit int) ([]string, error) {
	return s.rdb.LRange(ctx, contextKey(userID, sessionID), int64(-limit), -1).Result()
}

func (s *Store) ClearContext(ctx context.Context, userID uint64, sessionID string) error {
	return s.rdb.Del(ctx, contextKey(userID, sessionID)).Err()
}

// --- login lockout ---

func failKey(username string) string { return "login:fail:" + username }
func lockKey(username string) string { return "login:lock:" + username }

// LoginLocked reports whether username is currently locked.
func (s *Store) LoginLocked(ctx context.Context, username string) (bool, error) {
	n, err := s.rdb.Exists(ctx, lockKey(username)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RegisterLoginFailure counts a failure; at maxAttempts the username is locked for lockout.
func (s *Store) RegisterLoginFailure(ctx context.Context, username string, maxAttempts int, lockout time.Duration) (locked bool, err error) {
	n, err := s.rdb.Incr(ctx, failKey(username)).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		_ = s.rdb.Expire(ctx, failKey(username), lockout).Err()
	}
	if maxAttempts > 0 && n >= int64(maxAttempts) {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lockKey(username), n, lockout)
			pipe.Del(ctx, failKey(username))
			return nil
		})
		return err == nil, err
	}
	return false, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, failKey(username), lockKey(username)).Err()
}
