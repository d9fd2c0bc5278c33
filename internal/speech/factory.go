package speech

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/suPer8Hu/ai-roleplay/internal/config"
)

// NewTranscriber selects the STT backend from STT_PROVIDER.
func NewTranscriber(cfg config.Config, client *openai.Client) (Transcriber, error) {
	switch cfg.STTProvider {
	case "", "mock":
		return MockTranscriber{}, nil
	case "openai":
		if client == nil {
			return nil, fmt.Errorf("STT_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return NewOpenAITranscriber(client), nil
	default:
		return nil, fmt.Errorf("unsupported STT_PROVIDER=%q", cfg.STTProvider)
	}
}

// NewSynthesizer selects the TTS backend from TTS_PROVIDER.
func NewSynthesizer(cfg config.Config, client *openai.Client) (Synthesizer, error) {
	switch cfg.TTSProvider {
	case "", "mock":
		return MockSynthesizer{}, nil
	case "openai":
		if client == nil {
			return nil, fmt.Errorf("TTS_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return NewOpenAISynthesizer(client), nil
	case "dashscope":
		return NewDashScopeSynthesizer(cfg.DashScopeBaseURL, cfg.DashScopeAPIKey, cfg.SpeechTimeout()), nil
	default:
		return nil, fmt.Errorf("unsupported TTS_PROVIDER=%q", cfg.TTSProvider)
	}
}
