package knowledge

import (
	"time"

	"github.com/suPer8Hu/ai-roleplay/internal/role"
)

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentMarkdown ContentType = "markdown"
	ContentPDF      ContentType = "pdf"
	ContentJSON     ContentType = "json"
	ContentQA       ContentType = "qa"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentMarkdown, ContentPDF, ContentJSON, ContentQA:
		return true
	}
	return false
}

type Snippet struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID      uint64      `gorm:"index:idx_snippet_role_active,priority:1;not null" json:"role_id"`
	Role        *role.Role  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Title       string      `gorm:"type:varchar(200)" json:"title"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	ContentType ContentType `gorm:"type:varchar(16);not null" json:"content_type"`
	Source      string      `gorm:"type:varchar(255)" json:"source,omitempty"`
	// Embedding holds little-endian float32s when the vector strategy indexed the row.
	Embedding  []byte    `json:"-"`
	ChunkIndex int       `gorm:"not null;default:0" json:"chunk_index"`
	IsActive   bool      `gorm:"not null;index:idx_snippet_role_active,priority:2" json:"is_active"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Snippet) TableName() string { return "knowledge_snippets" }

// Hit is a scored retrieval result.
type Hit struct {
	Snippet Snippet `json:"snippet"`
	Score   float64 `json:"score"`
}
