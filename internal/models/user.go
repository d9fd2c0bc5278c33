package models

import "time"

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type User struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string     `gorm:"type:varchar(128)" json:"full_name,omitempty"`
	AvatarURL    string     `gorm:"type:varchar(500)" json:"avatar_url,omitempty"`
	Bio          string     `gorm:"type:varchar(500)" json:"bio,omitempty"`
	Status       UserStatus `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == UserActive
}
