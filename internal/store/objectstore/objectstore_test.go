package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	key := NewKey("audio/response", ".MP3", now)
	assert.True(t, strings.HasPrefix(key, "audio/response/2024/05/01/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp3"), key)
	assert.NotEqual(t, key, NewKey("audio/response", "mp3", now))
}

func TestLocalStore_PutOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://localhost:8080/media/", zerolog.Nop())
	require.NoError(t, err)

	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	url, err := store.Put(context.Background(), "audio/x/clip.wav", wav, "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/audio/x/clip.wav", url)

	rc, ct, err := store.Open(context.Background(), "audio/x/clip.wav")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, wav, got)
	assert.Equal(t, "audio/wav", ct)

	require.NoError(t, store.Health(context.Background()))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "", zerolog.Nop())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../escape.wav", []byte("x"), "audio/wav")
	assert.Error(t, err)
}

func TestS3Store_DisabledWithoutCredentials(t *testing.T) {
	store, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "k", []byte("x"), "audio/wav")
	assert.ErrorIs(t, err, errS3Disabled)
	assert.NoError(t, store.Health(context.Background()))
}
