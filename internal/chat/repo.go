package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the user's non-deleted sessions, most recently active first.
func (r *Repo) ListSessions(ctx context.Context, userID uint64, roleID *uint64, limit int) ([]Session, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, SessionDeleted)
	if roleID != nil {
		q = q.Where("role_id = ?", *roleID)
	}
	var out []Session
	if err := q.Order("updated_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateSession(ctx context.Context, sessionID string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&Session{}).Where("session_id = ?", sessionID).Updates(fields).Error
}

// InsertUserMessage stores a user turn and bumps the session's message_count.
func (r *Repo) InsertUserMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Session{}).Where("session_id = ?", m.SessionID).Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_message_at": m.CreatedAt,
		}).Error
	})
}

// InsertAssistantMessage stores a reply and adds its tokens to the session total.
func (r *Repo) InsertAssistantMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Session{}).Where("session_id = ?", m.SessionID).Updates(map[string]any{
			"total_tokens":    gorm.Expr("total_tokens + ?", m.TokensUsed),
			"last_message_at": m.CreatedAt,
		}).Error
	})
}

func (r *Repo) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetMessageByIdempotencyKey(ctx context.Context, userID uint64, sessionID, key string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND idempotency_key = ?", userID, sessionID, key).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ReplyTo returns the assistant message answering user message userMsgID.
func (r *Repo) ReplyTo(ctx context.Context, sessionID string, userMsgID uint64) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND reply_to_id = ? AND type = ?", sessionID, userMsgID, MessageAssistant).
		Order("id ASC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LastMessageID returns the newest message id of a session, 0 when it has none.
func (r *Repo) LastMessageID(ctx context.Context, sessionID string) (uint64, error) {
	var id uint64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(id), 0)").
		Scan(&id).Error
	return id, err
}

// ListMessages returns messages in DESC id order (newest -> oldest).
func (r *Repo) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages with id > afterID
// in DESC id order (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, userID uint64, sessionID string, afterID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND id > ?", userID, sessionID, afterID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) SetMessageAudioURL(ctx context.Context, id uint64, url string) error {
	return r.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Update("audio_url", url).Error
}

func (r *Repo) CreateAudioFile(ctx context.Context, a *AudioFile) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) UpdateAudioFile(ctx context.Context, id uint64, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&AudioFile{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repo) CreateFeedback(ctx context.Context, f *Feedback) error {
	return r.db.WithContext(ctx).Create(f).Error
}
