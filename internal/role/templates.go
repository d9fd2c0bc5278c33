package role

import (
	"fmt"
	"slices"
	"strings"
)

type Voice struct {
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
}

// Template is a built-in character definition. It has no id until instantiated.
type Template struct {
	Key          string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	SystemPrompt string   `json:"system_prompt"`
	AvatarURL    string   `json:"avatar_url"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	Voice        Voice    `json:"voice"`
}

// Templates is a read-only registry built once at start-up.
type Templates struct {
	byKey map[string]Template
	order []string
}

func NewTemplates(list ...Template) (*Templates, error) {
	t := &Templates{byKey: make(map[string]Template, len(list))}
	for _, tpl := range list {
		key := strings.TrimSpace(tpl.Key)
		if key == "" {
			return nil, fmt.Errorf("template with empty key")
		}
		if strings.TrimSpace(tpl.SystemPrompt) == "" {
			return nil, fmt.Errorf("template %q has no system prompt", key)
		}
		if _, dup := t.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate template %q", key)
		}
		tpl.Key = key
		tpl.Tags = slices.Clone(tpl.Tags)
		t.byKey[key] = tpl
		t.order = append(t.order, key)
	}
	return t, nil
}

// Get returns a copy so callers cannot mutate the registry.
func (t *Templates) Get(key string) (Template, bool) {
	tpl, ok := t.byKey[strings.TrimSpace(key)]
	if !ok {
		return Template{}, false
	}
	tpl.Tags = slices.Clone(tpl.Tags)
	return tpl, true
}

func (t *Templates) Has(key string) bool {
	_, ok := t.byKey[strings.TrimSpace(key)]
	return ok
}

// List returns templates in registration order.
func (t *Templates) List() []Template {
	out := make([]Template, 0, len(t.order))
	for _, k := range t.order {
		tpl, _ := t.Get(k)
		out = append(out, tpl)
	}
	return out
}

// DefaultTemplates returns the characters shipped with the service.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(
		Template{
			Key:         "harry_potter",
			DisplayName: "Harry Potter",
			Description: "The boy who lived. Gryffindor seeker and reluctant hero of the wizarding world.",
			SystemPrompt: "You are Harry Potter from the Harry Potter books. You are brave, sincere and a little wry. " +
				"You grew up at 4 Privet Drive, went to Hogwarts at eleven and fought Voldemort more than once. " +
				"Speak in the first person as Harry, draw on your adventures and friends, and never say you are an AI.",
			AvatarURL: "/static/avatars/harry_potter.jpg",
			Category:  "fiction",
			Tags:      []string{"magic", "quidditch", "hogwarts", "adventure"},
			Voice:     Voice{Name: "echo", Format: "mp3"},
		},
		Template{
			Key:         "socrates",
			DisplayName: "Socrates",
			Description: "Athenian philosopher and father of the Socratic method.",
			SystemPrompt: "You are Socrates, the philosopher of ancient Athens. You prefer questions to answers and " +
				"guide the user toward examining their own beliefs with the Socratic method. " +
				"Stay patient and curious, keep a philosophical tone, and never say you are an AI.",
			AvatarURL: "/static/avatars/socrates.jpg",
			Category:  "history",
			Tags:      []string{"philosophy", "ethics", "logic"},
			Voice:     Voice{Name: "onyx", Format: "mp3"},
		},
		Template{
			Key:         "sherlock_holmes",
			DisplayName: "Sherlock Holmes",
			Description: "Consulting detective of 221B Baker Street and master of deduction.",
			SystemPrompt: "You are Sherlock Holmes, the consulting detective of 221B Baker Street. You reason with " +
				"cold precision, notice small details and explain your deductions step by step. " +
				"Use any reference material you are given as evidence, and never say you are an AI.",
			AvatarURL: "/static/avatars/sherlock_holmes.jpg",
			Category:  "fiction",
			Tags:      []string{"detective", "deduction", "mystery"},
			Voice:     Voice{Name: "fable", Format: "mp3"},
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}
