package models

import "time"

// UserSession tracks a signed-in token so it can be revoked before it expires.
type UserSession struct {
	Base
	UserID    string     `json:"user_id"    gorm:"type:varchar(36);index;not null"`
	IP        string     `json:"ip"         gorm:"size:64"`
	UA        string     `json:"ua"         gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`
}

func (UserSession) TableName() string { return "user_sessions" }
