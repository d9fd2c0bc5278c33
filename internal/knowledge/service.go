package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
)

const (
	maxTitleLen   = 200
	maxContentLen = 20000
	maxBatch      = 100
)

// RoleLookup is satisfied by *role.Service.
type RoleLookup interface {
	Get(ctx context.Context, viewerID, id uint64) (*role.Role, error)
}

type Options struct {
	TopK         int
	Threshold    float64
	ChunkSize    int
	ChunkOverlap int
}

type Service struct {
	repo      *Repo
	roles     RoleLookup
	retriever Retriever
	indexer   Indexer
	opts      Options
	log       zerolog.Logger
}

// NewService wires the snippet store. indexer may be nil when retrieval reads the database directly.
func NewService(repo *Repo, roles RoleLookup, retriever Retriever, indexer Indexer, opts Options, log zerolog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	return &Service{repo: repo, roles: roles, retriever: retriever, indexer: indexer, opts: opts, log: log}
}

func (s *Service) Defaults() (topK int, threshold float64) {
	return s.opts.TopK, s.opts.Threshold
}

type SnippetInput struct {
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Source      string      `json:"source"`
}

// Retrieve is the lookup used by chat; the caller has already resolved the role.
func (s *Service) Retrieve(ctx context.Context, roleID uint64, query string, topK int, threshold float64) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	return s.retriever.Retrieve(ctx, roleID, query, topK, threshold)
}

// Search runs a retrieval on behalf of viewerID. Non-positive topK falls back to the default.
func (s *Service) Search(ctx context.Context, viewerID, roleID uint64, query string, topK int, threshold *float64) ([]Hit, error) {
	if _, err := s.roles.Get(ctx, viewerID, roleID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query required")
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if topK > 50 {
		topK = 50
	}
	th := s.opts.Threshold
	if threshold != nil {
		if *threshold < 0 || *threshold > 1 {
			return nil, apperr.Validation("threshold must be between 0 and 1")
		}
		th = *threshold
	}
	return s.Retrieve(ctx, roleID, query, topK, th)
}

func (s *Service) List(ctx context.Context, viewerID, roleID uint64) ([]Snippet, error) {
	if _, err := s.roles.Get(ctx, viewerID, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListActiveByRole(ctx, roleID)
}

// Create stores snippets for a role viewerID may edit.
func (s *Service) Create(ctx context.Context, viewerID, roleID uint64, inputs []SnippetInput) ([]Snippet, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("at least one snippet required")
	}
	if len(inputs) > maxBatch {
		return nil, apperr.Validation(fmt.Sprintf("at most %d snippets per request", maxBatch))
	}
	if err := s.checkWritable(ctx, viewerID, roleID); err != nil {
		return nil, err
	}

	rows := make([]Snippet, 0, len(inputs))
	for i, in := range inputs {
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return nil, apperr.Validation(fmt.Sprintf("snippet %d: content required", i))
		}
		if len([]rune(content)) > maxContentLen {
			return nil, apperr.Validation(fmt.Sprintf("snippet %d: content too long", i))
		}
		title := strings.TrimSpace(in.Title)
		if len([]rune(title)) > maxTitleLen {
			return nil, apperr.Validation(fmt.Sprintf("snippet %d: title too long", i))
		}
		ct := in.ContentType
		if ct == "" {
			ct = ContentText
		}
		if !ct.Valid() {
			return nil, apperr.Validation(fmt.Sprintf("snippet %d: unknown content_type", i))
		}
		rows = append(rows, Snippet{
			RoleID:      roleID,
			Title:       title,
			Content:     content,
			ContentType: ct,
			Source:      strings.TrimSpace(in.Source),
			IsActive:    true,
		})
	}
	return s.store(ctx, rows)
}

// Ingest extracts a document, splits it into chunks and stores one snippet per chunk.
func (s *Service) Ingest(ctx context.Context, viewerID, roleID uint64, filename, title string, data []byte) ([]Snippet, error) {
	if err := s.checkWritable(ctx, viewerID, roleID); err != nil {
		return nil, err
	}
	ct, text, err := Extract(filename, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "unsupported or unreadable document", err)
	}
	chunks, err := Chunk(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, apperr.Validation("document has no text")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = filename
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	rows := make([]Snippet, len(chunks))
	for i, c := range chunks {
		rows[i] = Snippet{
			RoleID:      roleID,
			Title:       title,
			Content:     c,
			ContentType: ct,
			Source:      filename,
			ChunkIndex:  i,
			IsActive:    true,
		}
	}
	return s.store(ctx, rows)
}

func (s *Service) Delete(ctx context.Context, viewerID, id uint64) error {
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("snippet not found")
		}
		return err
	}
	if err := s.checkWritable(ctx, viewerID, snippet.RoleID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("snippet not found")
		}
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, []uint64{id}); err != nil {
			s.log.Warn().Err(err).Uint64("snippet_id", id).Msg("vector index delete failed")
		}
	}
	return nil
}

func (s *Service) store(ctx context.Context, rows []Snippet) ([]Snippet, error) {
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("create snippets: %w", err)
	}
	if s.indexer != nil {
		// rows are already stored; an indexing failure only hides them from vector search
		if err := s.indexer.Index(ctx, rows); err != nil {
			s.log.Warn().Err(err).Int("count", len(rows)).Msg("vector indexing failed")
		}
	}
	return rows, nil
}

// checkWritable allows the role's creator, or anyone who can see an owner-less template instance.
func (s *Service) checkWritable(ctx context.Context, viewerID, roleID uint64) error {
	r, err := s.roles.Get(ctx, viewerID, roleID)
	if err != nil {
		return err
	}
	if r.CreatedBy != nil && !r.OwnedBy(viewerID) {
		return apperr.Unauthorized("only the creator can edit this role's knowledge")
	}
	return nil
}
