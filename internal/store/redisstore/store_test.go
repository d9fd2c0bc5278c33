package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "chat:ctx:7:01HSESSION", contextKey(7, "01HSESSION"))
	assert.Equal(t, "login:fail:alice", failKey("alice"))
	assert.Equal(t, "login:lock:alice", lockKey("alice"))
}

func TestContext_AppendOnlyExtendsExistingList(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := contextKey(1, "s1")

	require.NoError(t, s.AppendContext(ctx, 1, "s1", 3, time.Hour, "a"))
	assert.False(t, mr.Exists(key))

	items, err := s.RecentContext(ctx, 1, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, s.ReplaceContext(ctx, 1, "s1", time.Hour, "a", "b"))
	require.NoError(t, s.AppendContext(ctx, 1, "s1", 3, 2*time.Hour, "c", "d"))

	items, err = s.RecentContext(ctx, 1, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, items)
	assert.Equal(t, 2*time.Hour, mr.TTL(key))

	items, err = s.RecentContext(ctx, 1, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, items)
}

func TestContext_ReplaceAndClear(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := contextKey(2, "s2")

	require.NoError(t, s.ReplaceContext(ctx, 2, "s2", time.Minute, "x", "y", "z"))
	require.NoError(t, s.ReplaceContext(ctx, 2, "s2", time.Minute, "only"))
	items, err := s.RecentContext(ctx, 2, "s2", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, items)
	assert.Equal(t, time.Minute, mr.TTL(key))

	// other users never see the list
	items, err = s.RecentContext(ctx, 3, "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))

	require.NoError(t, s.ReplaceContext(ctx, 2, "s2", time.Minute, "again"))
	require.NoError(t, s.ClearContext(ctx, 2, "s2"))
	assert.False(t, mr.Exists(key))

	require.NoError(t, s.ReplaceContext(ctx, 2, "s2", time.Minute))
	assert.False(t, mr.Exists(key))
}

func TestLoginFailures_LockAfterMaxAttempts(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := s.RegisterLoginFailure(ctx, "alice", 3, 15*time.Minute)
		require.NoError(t, err)
		assert.False(t, locked)
	}
	assert.Equal(t, 15*time.Minute, mr.TTL(failKey("alice")))
	locked, err := s.LoginLocked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = s.RegisterLoginFailure(ctx, "alice", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.False(t, mr.Exists(failKey("alice")))

	locked, err = s.LoginLocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, locked)

	other, err := s.LoginLocked(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, other)

	mr.FastForward(16 * time.Minute)
	locked, err = s.LoginLocked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLoginFailures_Reset(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.RegisterLoginFailure(ctx, "carol", 1, time.Minute)
	require.NoError(t, err)
	locked, err := s.LoginLocked(ctx, "carol")
	require.NoError(t, err)
	require.True(t, locked)

	_, err = s.RegisterLoginFailure(ctx, "dave", 5, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.ResetLoginFailures(ctx, "carol"))
	require.NoError(t, s.ResetLoginFailures(ctx, "dave"))
	locked, err = s.LoginLocked(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.False(t, mr.Exists(failKey("dave")))
	assert.NoError(t, s.Ping(ctx))
}
