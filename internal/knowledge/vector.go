package knowledge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/metrics"
)

// Indexer keeps an external index in step with snippet writes.
type Indexer interface {
	Index(ctx context.Context, snippets []Snippet) error
	Remove(ctx context.Context, ids []uint64) error
}

// Match is one point returned by a vector index.
type Match struct {
	SnippetID uint64
	Score     float64
}

// VectorIndex stores snippet embeddings keyed by snippet id, partitioned by role.
type VectorIndex interface {
	Upsert(ctx context.Context, roleID, snippetID uint64, vector []float32) error
	Search(ctx context.Context, roleID uint64, vector []float32, limit int, minScore float64) ([]Match, error)
	Delete(ctx context.Context, ids []uint64) error
}

// VectorRetriever embeds the query and asks the index for the nearest snippets.
// It implements both Retriever and Indexer.
type VectorRetriever struct {
	repo     *Repo
	embedder ai.Embedder
	index    VectorIndex
}

func NewVectorRetriever(repo *Repo, embedder ai.Embedder, index VectorIndex) *VectorRetriever {
	return &VectorRetriever{repo: repo, embedder: embedder, index: index}
}

func (v *VectorRetriever) Retrieve(ctx context.Context, roleID uint64, query string, topK int, threshold float64) ([]Hit, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	vecs, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	// over-fetch so inactive rows dropped below do not starve the result
	matches, err := v.index.Search(ctx, roleID, vecs[0], topK*2, threshold)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []Hit{}, nil
	}

	ids := make([]uint64, len(matches))
	scores := make(map[uint64]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.SnippetID
		scores[m.SnippetID] = m.Score
	}
	snippets, err := v.repo.ListActiveByIDs(ctx, roleID, ids)
	if err != nil {
		return nil, fmt.Errorf("load snippets: %w", err)
	}

	hits := make([]Hit, len(snippets))
	for i, s := range snippets {
		hits[i] = Hit{Snippet: s, Score: scores[s.ID]}
	}
	hits = Rank(hits, topK, threshold)
	metrics.RecordRAGHits(len(hits))
	return hits, nil
}

func (v *VectorRetriever) Index(ctx context.Context, snippets []Snippet) error {
	if len(snippets) == 0 {
		return nil
	}
	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = s.Title + "\n" + s.Content
	}
	vecs, err := v.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed snippets: %w", err)
	}
	if len(vecs) != len(snippets) {
		return fmt.Errorf("embed snippets: got %d vectors for %d texts", len(vecs), len(snippets))
	}
	for i, s := range snippets {
		if err := v.index.Upsert(ctx, s.RoleID, s.ID, vecs[i]); err != nil {
			return err
		}
		if err := v.repo.SetEmbedding(ctx, s.ID, EncodeEmbedding(vecs[i])); err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}
	}
	return nil
}

func (v *VectorRetriever) Remove(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return v.index.Delete(ctx, ids)
}

func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func DecodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// QdrantConfig configures the qdrant-backed index.
type QdrantConfig struct {
	// URL is the Qdrant gRPC address, e.g. "http://localhost:6334".
	URL        string
	APIKey     string
	Collection string
	Dim        int
}

// QdrantIndex is a VectorIndex on a single Qdrant collection using cosine distance.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	idx := &QdrantIndex{client: client, collection: cfg.Collection}
	if err := idx.ensureCollection(ctx, cfg.Dim); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, roleID, snippetID uint64, vector []float32) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(snippetID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{"role_id": int64(roleID)}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, roleID uint64, vector []float32, limit int, minScore float64) ([]Match, error) {
	l := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt("role_id", int64(roleID))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]Match, 0, len(points))
	for _, p := range points {
		score := float64(p.Score)
		if score < minScore || p.Id == nil {
			continue
		}
		out = append(out, Match{SnippetID: p.Id.GetNum(), Score: score})
	}
	return out, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids []uint64) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
