package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("abc123")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "abc123"))
	assert.False(t, CheckPassword(hash, "abc124"))
	assert.False(t, CheckPassword("", "abc123"))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abc123"))
	assert.NoError(t, ValidatePassword("密码abc1"))

	for _, bad := range []string{"", "ab1", "abcdefg", "1234567"} {
		err := ValidatePassword(bad)
		require.Error(t, err, bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), bad)
	}
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice"))
	assert.NoError(t, ValidateUsername("bob_42"))
	assert.Error(t, ValidateUsername("al"))
	assert.Error(t, ValidateUsername("alice smith"))
}

func TestSignAndParseJWT(t *testing.T) {
	tok, err := SignJWT(42, "secret", time.Hour)
	require.NoError(t, err)

	uid, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
}

func TestParseJWT_Rejects(t *testing.T) {
	tok, err := SignJWT(42, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(tok, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignJWT(42, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseJWT("not.a.token", "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
