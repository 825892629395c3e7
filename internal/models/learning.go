package models

import "gorm.io/datatypes"

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusArchived  = "archived"
)

// LearningSession groups the analyses a user runs while studying.
type LearningSession struct {
	Base
	UserID         string         `json:"user_id"         gorm:"type:varchar(36);index;not null"`
	Title          string         `json:"title"           gorm:"size:200"`
	TargetLanguage string         `json:"target_language" gorm:"size:16"`
	NativeLanguage string         `json:"native_language" gorm:"size:16"`
	Status         string         `json:"status"          gorm:"size:16;not null;default:active"`
	Settings       datatypes.JSON `json:"settings"`
	Analyses       []Analysis     `json:"analyses,omitempty" gorm:"foreignKey:SessionID"`
}

func (LearningSession) TableName() string { return "sessions" }

const (
	AnalysisKindWord      = "word"
	AnalysisKindSentence  = "sentence"
	AnalysisKindParagraph = "paragraph"
)

// Analysis is a stored AI analysis result. Result is kept verbatim.
type Analysis struct {
	Base
	UserID     string         `json:"user_id"     gorm:"type:varchar(36);index;not null"`
	SessionID  *string        `json:"session_id"  gorm:"type:varchar(36);index"`
	Kind       string         `json:"kind"        gorm:"size:16;index;not null"`
	Input      string         `json:"input"       gorm:"type:text;not null"`
	Result     datatypes.JSON `json:"result"`
	Model      string         `json:"model"       gorm:"size:128"`
	Provider   string         `json:"provider"    gorm:"size:64"`
	TokensUsed int            `json:"tokens_used"`
}

func (Analysis) TableName() string { return "analyses" }
