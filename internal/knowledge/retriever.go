package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/suPer8Hu/ai-roleplay/internal/metrics"
)

// Retriever returns a role's snippets relevant to query, sorted by descending
// score, every score >= threshold, at most topK, ties broken by newest
// created_at then highest id. No match is an empty slice, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, roleID uint64, query string, topK int, threshold float64) ([]Hit, error)
}

// LexicalRetriever scores every active snippet of the role with TF-IDF.
type LexicalRetriever struct {
	repo *Repo
}

func NewLexicalRetriever(repo *Repo) *LexicalRetriever {
	return &LexicalRetriever{repo: repo}
}

func (r *LexicalRetriever) Retrieve(ctx context.Context, roleID uint64, query string, topK int, threshold float64) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	snippets, err := r.repo.ListActiveByRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("load snippets: %w", err)
	}
	if len(snippets) == 0 {
		return []Hit{}, nil
	}

	corpus := make([]string, len(snippets))
	for i, s := range snippets {
		corpus[i] = s.Title + "\n" + s.Content
	}
	scores := NewScorer(corpus).Scores(query)

	hits := make([]Hit, len(snippets))
	for i := range snippets {
		hits[i] = Hit{Snippet: snippets[i], Score: scores[i]}
	}
	hits = Rank(hits, topK, threshold)
	metrics.RecordRAGHits(len(hits))
	return hits, nil
}

// Rank filters hits below threshold (and zero scores), orders them and keeps topK.
func Rank(hits []Hit, topK int, threshold float64) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score > 0 && h.Score >= threshold {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Snippet.CreatedAt.Equal(b.Snippet.CreatedAt) {
			return a.Snippet.CreatedAt.After(b.Snippet.CreatedAt)
		}
		return a.Snippet.ID > b.Snippet.ID
	})
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
