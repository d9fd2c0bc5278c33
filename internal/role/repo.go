package role

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, role *Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *Repo) GetByID(ctx context.Context, id uint64) (*Role, error) {
	var role Role
	if err := r.db.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *Repo) GetByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *Repo) visible(ctx context.Context, viewerID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("is_public = ? OR created_by = ?", true, viewerID)
}

// ListVisible returns active roles that are public or owned by viewerID, oldest first.
func (r *Repo) ListVisible(ctx context.Context, viewerID uint64) ([]Role, error) {
	var roles []Role
	if err := r.visible(ctx, viewerID).Order("id ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *Repo) SearchVisible(ctx context.Context, viewerID uint64, q string, limit int) ([]Role, error) {
	like := "%" + strings.ToLower(q) + "%"
	var roles []Role
	err := r.visible(ctx, viewerID).
		Where("LOWER(name) LIKE ? OR LOWER(display_name) LIKE ? OR LOWER(description) LIKE ?", like, like, like).
		Order("id ASC").
		Limit(limit).
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *Repo) Update(ctx context.Context, id uint64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&Role{}).Where("id = ?", id).Updates(fields).Error
}
