package models

import "time"

// User is an account that owns sessions, analyses and vocabulary.
type User struct {
	Base
	Email        string     `json:"email"          gorm:"size:254;uniqueIndex;not null"`
	PasswordHash string     `json:"-"              gorm:"not null"`
	DisplayName  string     `json:"display_name"   gorm:"size:100"`
	Tier         string     `json:"tier"           gorm:"size:32;not null;default:free"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	LastSignInIP string     `json:"-"              gorm:"size:64"`
}

func (User) TableName() string { return "users" }
