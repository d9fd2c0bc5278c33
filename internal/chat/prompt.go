package chat

import (
	"strconv"
	"strings"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
)

// BuildPrompt assembles the provider input: the role's system prompt with any
// retrieved reference material appended, then the history oldest-first.
func BuildPrompt(systemPrompt string, hits []knowledge.Hit, history []ai.Message) []ai.Message {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(systemPrompt))
	if len(hits) > 0 {
		b.WriteString("\n\nReference material (use it when relevant, stay in character, do not quote it verbatim):")
		for i, h := range hits {
			b.WriteString("\n[")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("] ")
			if h.Snippet.Title != "" {
				b.WriteString(h.Snippet.Title)
				b.WriteString(": ")
			}
			b.WriteString(strings.TrimSpace(h.Snippet.Content))
		}
	}

	out := make([]ai.Message, 0, len(history)+1)
	out = append(out, ai.Message{Role: ai.RoleSystem, Content: b.String()})
	out = append(out, history...)
	return out
}

func ragRefs(hits []knowledge.Hit) []RAGRef {
	if len(hits) == 0 {
		return nil
	}
	out := make([]RAGRef, len(hits))
	for i, h := range hits {
		out[i] = RAGRef{SnippetID: h.Snippet.ID, Title: h.Snippet.Title, Score: h.Score}
	}
	return out
}

func toProviderMessages(desc []Message) []ai.Message {
	// reverse to ASC (oldest -> newest)
	out := make([]ai.Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		out = append(out, ai.Message{Role: string(desc[i].Type), Content: desc[i].Content})
	}
	return out
}

func sessionTitle(content string) string {
	const maxTitle = 50
	content = strings.Join(strings.Fields(content), " ")
	r := []rune(content)
	if len(r) <= maxTitle {
		return content
	}
	return string(r[:maxTitle]) + "..."
}
