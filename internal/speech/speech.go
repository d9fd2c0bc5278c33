// Package speech wraps external speech-to-text and text-to-speech services.
package speech

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyAudio = errors.New("speech: empty audio")

type Transcriber interface {
	// Transcribe converts audio to text. filename carries the container
	// extension some providers need to detect the format.
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Name() string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) (*Audio, error)
	Name() string
}

type Options struct {
	Voice  string
	Format string
}

type Audio struct {
	Data   []byte
	Format string
}

func (a *Audio) ContentType() string {
	return ContentTypeFor(a.Format)
}

var formats = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"pcm":  "audio/L16",
}

// NormalizeFormat lower-cases format and defaults it to mp3. ok is false for unsupported formats.
func NormalizeFormat(format string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return "mp3", true
	}
	_, ok := formats[f]
	return f, ok
}

func ContentTypeFor(format string) string {
	if ct, ok := formats[strings.ToLower(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}
