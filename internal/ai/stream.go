package ai

import (
	"context"
	"strings"
)

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// Collect forwards every chunk to fn (when non-nil) and returns the joined
// text after the stream ends, or the first stream error.
func Collect(chunks <-chan string, errs <-chan error, fn func(string)) (string, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if fn != nil {
			fn(c)
		}
	}
	if err := <-errs; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}
