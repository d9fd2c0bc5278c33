package chat

import (
	"time"

	"gorm.io/datatypes"

	"github.com/suPer8Hu/ai-roleplay/internal/models"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
)

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

type Session struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID     string        `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID        uint64        `gorm:"index:idx_chat_session_user_role,priority:1;not null" json:"-"`
	User          *models.User  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RoleID        uint64        `gorm:"index:idx_chat_session_user_role,priority:2;not null" json:"role_id"`
	Role          *role.Role    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Title         string        `gorm:"type:varchar(200)" json:"title"`
	Provider      string        `gorm:"type:varchar(32);not null" json:"provider"`
	Model         string        `gorm:"type:varchar(64);not null" json:"model"`
	MessageCount  int           `gorm:"not null;default:0" json:"message_count"`
	TotalTokens   int           `gorm:"not null;default:0" json:"total_tokens"`
	LastMessageAt *time.Time    `gorm:"index" json:"last_message_at"`
	Status        SessionStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// ContextResetAfterID hides messages up to this id from the model after a clear.
	ContextResetAfterID uint64 `gorm:"not null;default:0" json:"-"`
}

func (Session) TableName() string { return "chat_sessions" }

type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// RAGRef records one snippet that was spliced into the prompt of a turn.
type RAGRef struct {
	SnippetID uint64  `json:"snippet_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}

type Message struct {
	ID             uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string                      `gorm:"type:varchar(26);not null;index:idx_chat_msg_user_session_id,priority:2;index:uniq_chat_msg_idempo,unique,priority:2" json:"session_id"`
	Session        *Session                    `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	UserID         uint64                      `gorm:"not null;index:idx_chat_msg_user_session_id,priority:1;index:uniq_chat_msg_idempo,unique,priority:1" json:"-"`
	Type           MessageType                 `gorm:"type:varchar(16);index;not null" json:"type"`
	Content        string                      `gorm:"type:text;not null" json:"content"`
	AudioURL       string                      `gorm:"type:varchar(500)" json:"audio_url,omitempty"`
	TokensUsed     int                         `gorm:"not null;default:0" json:"tokens_used"`
	RAGContext     datatypes.JSONSlice[RAGRef] `json:"rag_context,omitempty"`
	IdempotencyKey *string                     `gorm:"type:varchar(128);index:uniq_chat_msg_idempo,unique,priority:3" json:"-"`
	CreatedAt      time.Time                   `json:"created_at"`

	// ReplyToID links an assistant message to the user message it answers.
	ReplyToID *uint64 `gorm:"index" json:"reply_to_id,omitempty"`
}

func (Message) TableName() string { return "chat_messages" }

type AudioType string

const (
	AudioInput    AudioType = "input"
	AudioResponse AudioType = "response"
)

type AudioStatus string

const (
	AudioProcessing AudioStatus = "processing"
	AudioCompleted  AudioStatus = "completed"
	AudioFailed     AudioStatus = "failed"
)

type AudioFile struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID  *uint64     `gorm:"index" json:"message_id,omitempty"`
	Message    *Message    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID     uint64      `gorm:"index;not null" json:"-"`
	Type       AudioType   `gorm:"type:varchar(16);not null" json:"type"`
	FileURL    string      `gorm:"type:varchar(500)" json:"file_url"`
	ObjectKey  string      `gorm:"type:varchar(255)" json:"-"`
	Format     string      `gorm:"type:varchar(16)" json:"format"`
	SizeBytes  int64       `json:"size_bytes"`
	DurationMS int         `json:"duration_ms"`
	Status     AudioStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Error      string      `gorm:"type:varchar(500)" json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (AudioFile) TableName() string { return "audio_files" }

type FeedbackType string

const (
	FeedbackLike    FeedbackType = "like"
	FeedbackDislike FeedbackType = "dislike"
	FeedbackRating  FeedbackType = "rating"
)

type Feedback struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64       `gorm:"index;not null" json:"user_id"`
	User      *models.User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RoleID    uint64       `gorm:"index;not null" json:"role_id"`
	Role      *role.Role   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	MessageID *uint64      `gorm:"index" json:"message_id,omitempty"`
	Type      FeedbackType `gorm:"type:varchar(16);not null" json:"type"`
	Rating    *int         `json:"rating,omitempty"`
	Reason    string       `gorm:"type:varchar(100)" json:"reason,omitempty"`
	Comment   string       `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }
