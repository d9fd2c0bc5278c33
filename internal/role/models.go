package role

import (
	"time"

	"gorm.io/datatypes"

	"github.com/suPer8Hu/ai-roleplay/internal/models"
)

type Role struct {
	ID           uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string                      `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	DisplayName  string                      `gorm:"type:varchar(100)" json:"display_name"`
	Description  string                      `gorm:"type:text" json:"description"`
	SystemPrompt string                      `gorm:"type:text;not null" json:"system_prompt"`
	AvatarURL    string                      `gorm:"type:varchar(500)" json:"avatar_url"`
	Category     string                      `gorm:"type:varchar(50);index" json:"category"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	Voice        datatypes.JSONType[Voice]   `json:"voice"`
	TemplateKey  *string                     `gorm:"type:varchar(64);index" json:"template_key,omitempty"`
	IsPublic     bool                        `gorm:"not null" json:"is_public"`
	IsActive     bool                        `gorm:"not null;index" json:"is_active"`
	CreatedBy    *uint64                     `gorm:"index" json:"created_by,omitempty"`
	Creator      *models.User                `gorm:"foreignKey:CreatedBy;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Role) TableName() string { return "roles" }

func (r *Role) OwnedBy(userID uint64) bool {
	return r.CreatedBy != nil && *r.CreatedBy == userID
}

// VisibleTo reports whether userID may read or chat with the role.
func (r *Role) VisibleTo(userID uint64) bool {
	if r.OwnedBy(userID) {
		return true
	}
	return r.IsActive && r.IsPublic
}

// Summary is one entry of the catalog listing. ID is nil for built-in templates.
type Summary struct {
	ID          *uint64  `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	AvatarURL   string   `json:"avatar_url"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	TemplateKey string   `json:"template_key,omitempty"`
	IsBuiltin   bool     `json:"is_builtin"`
	IsPublic    bool     `json:"is_public"`
}

func summaryOfTemplate(t Template) Summary {
	return Summary{
		Name:        t.Key,
		DisplayName: t.DisplayName,
		Description: t.Description,
		AvatarURL:   t.AvatarURL,
		Category:    t.Category,
		Tags:        t.Tags,
		TemplateKey: t.Key,
		IsBuiltin:   true,
		IsPublic:    true,
	}
}

func summaryOfRole(r Role) Summary {
	id := r.ID
	s := Summary{
		ID:          &id,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		AvatarURL:   r.AvatarURL,
		Category:    r.Category,
		Tags:        []string(r.Tags),
		IsPublic:    r.IsPublic,
	}
	if r.TemplateKey != nil {
		s.TemplateKey = *r.TemplateKey
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s
}
