package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/config"
)

func TestNormalizeFormat(t *testing.T) {
	f, ok := NormalizeFormat("")
	assert.True(t, ok)
	assert.Equal(t, "mp3", f)

	f, ok = NormalizeFormat(" WAV ")
	assert.True(t, ok)
	assert.Equal(t, "wav", f)

	_, ok = NormalizeFormat("midi")
	assert.False(t, ok)

	assert.Equal(t, "audio/mpeg", ContentTypeFor("mp3"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("midi"))
}

func TestMockSynthesizer(t *testing.T) {
	a, err := MockSynthesizer{}.Synthesize(context.Background(), "hello world", Options{})
	require.NoError(t, err)
	assert.Equal(t, "wav", a.Format)
	assert.Equal(t, "RIFF", string(a.Data[:4]))
	assert.Equal(t, 550, DurationMS(a))
}

func TestMockTranscriber(t *testing.T) {
	_, err := MockTranscriber{}.Transcribe(context.Background(), nil, "a.wav")
	assert.ErrorIs(t, err, ErrEmptyAudio)

	text, err := MockTranscriber{}.Transcribe(context.Background(), make([]byte, 2000), "a.wav")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestDashScopeSynthesizer(t *testing.T) {
	var got dashScopeReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, dashScopeTTSPath, r.URL.Path)
		assert.Equal(t, "Bearer ds-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	s := NewDashScopeSynthesizer(srv.URL, "ds-key", time.Second)
	a, err := s.Synthesize(context.Background(), "你好", Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake"), a.Data)
	assert.Equal(t, "mp3", a.Format)
	assert.Equal(t, "longxiaochun", got.Parameters.Voice)
	assert.Equal(t, "你好", got.Input.Text)
}

func TestDashScopeSynthesizer_JSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"InvalidParameter"}`))
	}))
	defer srv.Close()

	_, err := NewDashScopeSynthesizer(srv.URL, "ds-key", time.Second).Synthesize(context.Background(), "hi", Options{})
	assert.Error(t, err)

	_, err = NewDashScopeSynthesizer(srv.URL, "", time.Second).Synthesize(context.Background(), "hi", Options{})
	assert.ErrorContains(t, err, "api key")
}

func TestOpenAISpeech(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "RIFFdata", string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hello there "}`))
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := ai.NewOpenAIClient("key", srv.URL+"/v1", time.Second)

	text, err := NewOpenAITranscriber(client).Transcribe(context.Background(), []byte("RIFFdata"), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	a, err := NewOpenAISynthesizer(client).Synthesize(context.Background(), "hi", Options{Format: "mp3"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3bytes"), a.Data)
}

func TestFactories(t *testing.T) {
	tr, err := NewTranscriber(config.Config{STTProvider: "mock"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", tr.Name())

	_, err = NewTranscriber(config.Config{STTProvider: "openai"}, nil)
	assert.Error(t, err)

	sy, err := NewSynthesizer(config.Config{TTSProvider: "dashscope"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "dashscope", sy.Name())

	_, err = NewSynthesizer(config.Config{TTSProvider: "nope"}, nil)
	assert.Error(t, err)
}
