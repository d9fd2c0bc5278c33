package knowledge

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateBatch(ctx context.Context, snippets []Snippet) error {
	if len(snippets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&snippets).Error
}

func (r *Repo) GetByID(ctx context.Context, id uint64) (*Snippet, error) {
	var s Snippet
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListActiveByRole(ctx context.Context, roleID uint64) ([]Snippet, error) {
	var out []Snippet
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveByIDs returns the active snippets of roleID among ids, in no particular order.
func (r *Repo) ListActiveByIDs(ctx context.Context, roleID uint64, ids []uint64) ([]Snippet, error) {
	if len(ids) == 0 {
		return []Snippet{}, nil
	}
	var out []Snippet
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND is_active = ? AND id IN ?", roleID, true, ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SetEmbedding(ctx context.Context, id uint64, embedding []byte) error {
	return r.db.WithContext(ctx).Model(&Snippet{}).Where("id = ?", id).Update("embedding", embedding).Error
}

func (r *Repo) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Snippet{}, id).Error
}
