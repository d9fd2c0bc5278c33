package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 60
	MaxDocumentBytes    = 10 << 20
)

var ErrUnsupportedDocument = errors.New("unsupported document type")

// Extract detects the document type from its bytes (and extension for
// markdown) and returns its plain text.
func Extract(filename string, data []byte) (ContentType, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty document")
	}
	if len(data) > MaxDocumentBytes {
		return "", "", fmt.Errorf("document larger than %d bytes", MaxDocumentBytes)
	}

	mt := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mt.Is("application/pdf"):
		text, err := extractPDF(data)
		return ContentPDF, text, err
	case mt.Is("application/json") || ext == ".json":
		text, err := flattenJSON(data)
		return ContentJSON, text, err
	case ext == ".md" || ext == ".markdown":
		return ContentMarkdown, StripMarkdown(string(data)), nil
	case strings.HasPrefix(mt.String(), "text/"):
		if !utf8.Valid(data) {
			return "", "", fmt.Errorf("text is not valid utf-8")
		}
		return ContentText, string(data), nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, mt.String())
}

func extractPDF(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i+1, err)
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}

var (
	mdFence    = regexp.MustCompile("(?m)^```.*$")
	mdHeading  = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	mdQuote    = regexp.MustCompile(`(?m)^[ \t]{0,3}>[ \t]?`)
	mdList     = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]+`)
	mdImage    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile(`(\*\*|\*|~~|` + "`" + `)([^*~` + "`" + `\n]+)(\*\*|\*|~~|` + "`" + `)`)
	mdRule     = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`)
)

// StripMarkdown removes markup and keeps the readable text.
func StripMarkdown(s string) string {
	s = mdFence.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdList.ReplaceAllString(s, "")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	return strings.TrimSpace(s)
}

// flattenJSON renders every scalar as a "path: value" line, keys sorted.
func flattenJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	var lines []string
	walkJSON("", v, &lines)
	return strings.Join(lines, "\n"), nil
}

func walkJSON(path string, v any, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if path != "" {
				p = path + "." + k
			}
			walkJSON(p, t[k], lines)
		}
	case []any:
		for i, item := range t {
			walkJSON(path+"["+strconv.Itoa(i)+"]", item, lines)
		}
	case nil:
	default:
		if path == "" {
			*lines = append(*lines, fmt.Sprint(t))
			return
		}
		*lines = append(*lines, fmt.Sprintf("%s: %v", path, t))
	}
}

// Chunk splits text into pieces of at most size runes with overlap.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	splitter := textsplitter.NewRecursiveCharacter()
	splitter.ChunkSize = size
	splitter.ChunkOverlap = overlap
	splitter.LenFunc = utf8.RuneCountInString

	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
