package analyses

import (
	"encoding/json"
	"strings"

	"github.com/lexiflow/core/internal/models"
)

const tableName = "analyses"

// SaveRequest stores a result produced elsewhere, e.g. by a client that ran
// the analysis and wants to keep it.
type SaveRequest struct {
	SessionID  string          `json:"session_id"  validate:"omitempty,uuid"`
	Kind       string          `json:"kind"        validate:"required,oneof=word sentence paragraph"`
	Input      string          `json:"input"       validate:"required,min=1,max=5000"`
	Result     json.RawMessage `json:"result"      validate:"required,jsonobject"`
	Model      string          `json:"model"       validate:"max=128"`
	Provider   string          `json:"provider"    validate:"max=64"`
	TokensUsed int             `json:"tokens_used" validate:"min=0"`
}

func (r *SaveRequest) Normalize() {
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.Input = strings.TrimSpace(r.Input)
	r.Model = strings.TrimSpace(r.Model)
	r.Provider = strings.TrimSpace(r.Provider)
}

type listParams struct {
	SessionID string `json:"session_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

type page struct {
	Items []models.Analysis `json:"items"`
	Total int64             `json:"total"`
}
