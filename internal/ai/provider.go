package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a finished reply with provider-reported token usage.
// Token counts are zero when the provider does not report them.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (Completion, error)
}

// Named is implemented by providers that can report their name for logging.
type Named interface {
	Name() string
}

// ProviderName returns p's name, or "unknown".
func ProviderName(p Provider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

func usage(content string, prompt, completion int) Completion {
	return Completion{
		Content:          content,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
