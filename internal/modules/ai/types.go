package ai

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind names an analysis endpoint and the tier feature that unlocks it.
type Kind string

const (
	KindWord      Kind = "word"
	KindSentence  Kind = "sentence"
	KindParagraph Kind = "paragraph"

	featureGenerate  = "generate"
	featureEmbedding = "embedding"

	defaultMaxItems = 5
	maxMaxItems     = 10
)

func parseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindWord, KindSentence, KindParagraph:
		return k, true
	default:
		return "", false
	}
}

// Target lets a request persist its result into a learning session.
type Target struct {
	SessionID      string `json:"session_id"      validate:"omitempty,uuid"`
	TargetLanguage string `json:"target_language" validate:"max=16"`
	NativeLanguage string `json:"native_language" validate:"max=16"`
}

func (t *Target) normalize() {
	t.SessionID = strings.TrimSpace(t.SessionID)
	t.TargetLanguage = strings.TrimSpace(t.TargetLanguage)
	t.NativeLanguage = strings.TrimSpace(t.NativeLanguage)
}

type WordRequest struct {
	Word            string `json:"word"             validate:"required,min=1,max=100"`
	Context         string `json:"context"          validate:"max=1000"`
	SentenceContext string `json:"sentence_context" validate:"max=1000"`
	Target
}

func (r *WordRequest) Normalize() {
	r.Word = strings.TrimSpace(r.Word)
	r.Context = strings.TrimSpace(r.Context)
	r.SentenceContext = strings.TrimSpace(r.SentenceContext)
	r.Target.normalize()
}

type SentenceRequest struct {
	Sentence string `json:"sentence" validate:"required,min=3,max=1000"`
	Context  string `json:"context"  validate:"max=1000"`
	MaxItems *int   `json:"maxItems" validate:"omitempty,min=1,max=10"`
	Target
}

func (r *SentenceRequest) Normalize() {
	r.Sentence = strings.TrimSpace(r.Sentence)
	r.Context = strings.TrimSpace(r.Context)
	r.Target.normalize()
}

// Items is the number of items to request from the model, never above ten.
func (r *SentenceRequest) Items() int { return items(r.MaxItems) }

type ParagraphRequest struct {
	Paragraph string `json:"paragraph" validate:"required,min=50,max=5000"`
	Context   string `json:"context"   validate:"max=1000"`
	MaxItems  *int   `json:"maxItems"  validate:"omitempty,min=1,max=10"`
	Target
}

func (r *ParagraphRequest) Normalize() {
	r.Paragraph = strings.TrimSpace(r.Paragraph)
	r.Context = strings.TrimSpace(r.Context)
	r.Target.normalize()
}

func (r *ParagraphRequest) Items() int { return items(r.MaxItems) }

func items(n *int) int {
	if n == nil || *n < 1 {
		return defaultMaxItems
	}
	if *n > maxMaxItems {
		return maxMaxItems
	}
	return *n
}

type GenerateRequest struct {
	Prompt    string `json:"prompt"     validate:"required,min=1,max=8000"`
	System    string `json:"system"     validate:"max=4000"`
	MaxTokens int    `json:"max_tokens" validate:"omitempty,min=1,max=4000"`
	Stream    bool   `json:"stream"`
}

func (r *GenerateRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.System = strings.TrimSpace(r.System)
}

type EmbeddingRequest struct {
	Text string `json:"text" validate:"required,min=1,max=8000"`
}

func (r *EmbeddingRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
}

// Analysis is the outcome of one analyze call. Result is forwarded verbatim.
type Analysis struct {
	Kind       Kind
	Input      string
	Result     json.RawMessage
	Model      string
	Provider   string
	TokensUsed int64
	Remaining  int64
	AnalysisID string
}

// Quota is a user's AI allowance in the current window.
type Quota struct {
	CanUseAI          bool      `json:"canUseAI"`
	Tier              string    `json:"tier"`
	Features          []string  `json:"features"`
	RequestLimit      int64     `json:"requestLimit"`
	TokenLimit        int64     `json:"tokenLimit"`
	UsedRequests      int64     `json:"usedRequests"`
	UsedTokens        int64     `json:"usedTokens"`
	RemainingRequests int64     `json:"remainingRequests"`
	RemainingTokens   int64     `json:"remainingTokens"`
	ResetAt           time.Time `json:"resetAt"`
}

// HasFeature reports whether the tier unlocks feature.
func (q *Quota) HasFeature(feature string) bool {
	for _, f := range q.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Model      string `json:"model"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Default    bool   `json:"default"`
	Embeddings bool   `json:"embeddings"`
	Error      string `json:"error,omitempty"`
}

type generateResponse struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	TokensUsed int64  `json:"tokensUsed"`
}

type embeddingResponse struct {
	Embedding  []float64 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	TokensUsed int64     `json:"tokensUsed"`
}
