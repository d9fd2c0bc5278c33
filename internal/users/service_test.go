package users

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

type memLimiter struct {
	mu     sync.Mutex
	fails  map[string]int
	locked map[string]bool
}

func newMemLimiter() *memLimiter {
	return &memLimiter{fails: map[string]int{}, locked: map[string]bool{}}
}

func (l *memLimiter) LoginLocked(_ context.Context, username string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked[username], nil
}

func (l *memLimiter) RegisterLoginFailure(_ context.Context, username string, maxAttempts int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails[username]++
	if l.fails[username] >= maxAttempts {
		l.locked[username] = true
		delete(l.fails, username)
		return true, nil
	}
	return false, nil
}

func (l *memLimiter) ResetLoginFailures(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fails, username)
	delete(l.locked, username)
	return nil
}

func newTestService(t *testing.T, limiter LoginLimiter) *Service {
	t.Helper()
	opts := Options{JWTSecret: "test-secret", TokenTTL: time.Hour, LoginMaxAttempts: 3, LoginLockout: time.Minute}
	return NewService(NewRepo(openTestDB(t)), limiter, nil, opts, zerolog.Nop())
}

func TestRegisterLoginVerify(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "abc123"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "abc123", u.PasswordHash)

	res, err := svc.Login(ctx, "alice", "abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, int64(3600), res.ExpiresIn)

	uid, err := svc.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
}

func TestRegister_Rejects(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "abc123"})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   RegisterInput
		kind apperr.Kind
	}{
		{"duplicate username", RegisterInput{Username: "alice", Email: "other@example.com", Password: "abc123"}, apperr.KindConflict},
		{"duplicate email", RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "abc123"}, apperr.KindConflict},
		{"weak password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "abcdef"}, apperr.KindValidation},
		{"short password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "a1"}, apperr.KindValidation},
		{"bad email", RegisterInput{Username: "bob", Email: "not-an-email", Password: "abc123"}, apperr.KindValidation},
		{"bad username", RegisterInput{Username: "b", Email: "bob@example.com", Password: "abc123"}, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "abc123"})
	require.NoError(t, err)

	_, errWrong := svc.Login(ctx, "alice", "wrong123")
	_, errUnknown := svc.Login(ctx, "nobody", "abc123")

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(errWrong))
	assert.Equal(t, apperr.MessageOf(errWrong), apperr.MessageOf(errUnknown))
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	limiter := newMemLimiter()
	svc := newTestService(t, limiter)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "abc123"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, "alice", "wrong123")
		require.Error(t, err)
	}

	_, err = svc.Login(ctx, "alice", "abc123")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestLogin_DisabledUser(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "abc123"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "alice", "abc123")
	require.NoError(t, err)

	require.NoError(t, svc.repo.Update(ctx, u.ID, map[string]any{"status": models.UserDisabled}))

	_, err = svc.Login(ctx, "alice", "abc123")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Verify(ctx, res.Token)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestVerify_RejectsGarbage(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Verify(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	alice, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "abc123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "abc123"})
	require.NoError(t, err)

	name := "Alice Liddell"
	bio := "curious"
	u, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{FullName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, name, u.FullName)
	assert.Equal(t, bio, u.Bio)

	taken := "bob@example.com"
	_, err = svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: &taken})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	own := "alice@example.com"
	_, err = svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: &own})
	assert.NoError(t, err)
}
