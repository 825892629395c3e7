package sessions

import (
	"encoding/json"
	"strings"

	"github.com/lexiflow/core/internal/models"
	"gorm.io/datatypes"
)

const tableName = "sessions"

type CreateRequest struct {
	Title          string          `json:"title"           validate:"max=200"`
	TargetLanguage string          `json:"target_language" validate:"max=16"`
	NativeLanguage string          `json:"native_language" validate:"max=16"`
	Settings       json.RawMessage `json:"settings"        validate:"jsonobject"`
}

func (r *CreateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.TargetLanguage = strings.TrimSpace(r.TargetLanguage)
	r.NativeLanguage = strings.TrimSpace(r.NativeLanguage)
}

// UpdateRequest changes only the fields that are present.
type UpdateRequest struct {
	Title          *string         `json:"title"           validate:"omitempty,max=200"`
	TargetLanguage *string         `json:"target_language" validate:"omitempty,max=16"`
	NativeLanguage *string         `json:"native_language" validate:"omitempty,max=16"`
	Status         *string         `json:"status"          validate:"omitempty,oneof=active completed archived"`
	Settings       json.RawMessage `json:"settings"        validate:"jsonobject"`
}

func (r *UpdateRequest) Normalize() {
	for _, p := range []*string{r.Title, r.TargetLanguage, r.NativeLanguage, r.Status} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if r.Status != nil {
		*r.Status = strings.ToLower(*r.Status)
	}
}

func (r *UpdateRequest) values() map[string]any {
	v := map[string]any{}
	if r.Title != nil {
		v["title"] = *r.Title
	}
	if r.TargetLanguage != nil {
		v["target_language"] = *r.TargetLanguage
	}
	if r.NativeLanguage != nil {
		v["native_language"] = *r.NativeLanguage
	}
	if r.Status != nil {
		v["status"] = *r.Status
	}
	if settings := settingsOrNil(r.Settings); settings != nil {
		v["settings"] = datatypes.JSON(settings)
	}
	return v
}

// settingsOrNil treats an absent or null settings value as "not provided".
func settingsOrNil(raw json.RawMessage) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return []byte(trimmed)
}

type listParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type page struct {
	Items []models.LearningSession `json:"items"`
	Total int64                    `json:"total"`
}
