package vocabulary

import (
	"strings"

	"github.com/lexiflow/core/internal/models"
)

const (
	wordsTable       = "vocabulary_words"
	collectionsTable = "vocabulary_collections"
)

// WordInput is one vocabulary entry as submitted by a client.
type WordInput struct {
	Word            string   `json:"word"             validate:"required,min=1,max=100"`
	DefinitionEN    string   `json:"definition_en"    validate:"required,min=1,max=2000"`
	PartOfSpeech    string   `json:"part_of_speech"   validate:"max=32"`
	Pronunciation   string   `json:"pronunciation"    validate:"max=128"`
	CollectionID    string   `json:"collection_id"    validate:"omitempty,uuid"`
	DifficultyLevel *int     `json:"difficulty_level" validate:"omitempty,min=1,max=5"`
	MasteryLevel    *int     `json:"mastery_level"    validate:"omitempty,min=0,max=5"`
	Contexts        []string `json:"contexts"         validate:"max=20,dive,min=1,max=500"`
	Synonyms        []string `json:"synonyms"         validate:"max=20,dive,min=1,max=500"`
	Antonyms        []string `json:"antonyms"         validate:"max=20,dive,min=1,max=500"`
	Collocations    []string `json:"collocations"     validate:"max=20,dive,min=1,max=500"`
}

func (w *WordInput) Normalize() {
	w.Word = normalizeWord(w.Word)
	w.DefinitionEN = strings.TrimSpace(w.DefinitionEN)
	w.PartOfSpeech = strings.ToLower(strings.TrimSpace(w.PartOfSpeech))
	w.Pronunciation = strings.TrimSpace(w.Pronunciation)
	w.CollectionID = strings.TrimSpace(w.CollectionID)
	w.Contexts = cleanList(w.Contexts)
	w.Synonyms = cleanList(w.Synonyms)
	w.Antonyms = cleanList(w.Antonyms)
	w.Collocations = cleanList(w.Collocations)
}

func (w *WordInput) row(userID string) models.VocabularyWord {
	row := models.VocabularyWord{
		UserID:          userID,
		Word:            w.Word,
		DefinitionEN:    w.DefinitionEN,
		PartOfSpeech:    w.PartOfSpeech,
		Pronunciation:   w.Pronunciation,
		DifficultyLevel: 1,
	}
	if w.CollectionID != "" {
		id := w.CollectionID
		row.CollectionID = &id
	}
	if w.DifficultyLevel != nil {
		row.DifficultyLevel = *w.DifficultyLevel
	}
	if w.MasteryLevel != nil {
		row.MasteryLevel = *w.MasteryLevel
	}
	return row
}

func (w *WordInput) relations(wordID string) []models.WordRelation {
	return models.RelationRows(wordID, w.Contexts, w.Synonyms, w.Antonyms, w.Collocations)
}

// normalizeWord stores words trimmed and lower-cased, so uniqueness is
// case-insensitive.
func normalizeWord(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// cleanList trims items and drops blank ones. A nil list stays nil so updates
// can tell "absent" from "empty".
func cleanList(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

type BatchRequest struct {
	Words []WordInput `json:"words" validate:"required,min=1,max=100,dive"`
}

func (r *BatchRequest) Normalize() {
	for i := range r.Words {
		r.Words[i].Normalize()
	}
}

// BatchResult reports which words were stored and which already existed.
type BatchResult struct {
	Created      []models.VocabularyWord `json:"created"`
	Skipped      []string                `json:"skipped"`
	CreatedCount int                     `json:"created_count"`
	SkippedCount int                     `json:"skipped_count"`
}

// UpdateWordRequest changes only the fields that are present. A present
// sub-list replaces the stored one. An empty collection_id detaches the word.
type UpdateWordRequest struct {
	DefinitionEN    *string  `json:"definition_en"    validate:"omitempty,min=1,max=2000"`
	PartOfSpeech    *string  `json:"part_of_speech"   validate:"omitempty,max=32"`
	Pronunciation   *string  `json:"pronunciation"    validate:"omitempty,max=128"`
	CollectionID    *string  `json:"collection_id"    validate:"omitempty,uuid"`
	DifficultyLevel *int     `json:"difficulty_level" validate:"omitempty,min=1,max=5"`
	MasteryLevel    *int     `json:"mastery_level"    validate:"omitempty,min=0,max=5"`
	Contexts        []string `json:"contexts"         validate:"omitempty,max=20,dive,min=1,max=500"`
	Synonyms        []string `json:"synonyms"         validate:"omitempty,max=20,dive,min=1,max=500"`
	Antonyms        []string `json:"antonyms"         validate:"omitempty,max=20,dive,min=1,max=500"`
	Collocations    []string `json:"collocations"     validate:"omitempty,max=20,dive,min=1,max=500"`

	detachCollection bool
}

func (r *UpdateWordRequest) Normalize() {
	if r.DefinitionEN != nil {
		*r.DefinitionEN = strings.TrimSpace(*r.DefinitionEN)
	}
	if r.PartOfSpeech != nil {
		*r.PartOfSpeech = strings.ToLower(strings.TrimSpace(*r.PartOfSpeech))
	}
	if r.Pronunciation != nil {
		*r.Pronunciation = strings.TrimSpace(*r.Pronunciation)
	}
	if r.CollectionID != nil {
		if id := strings.TrimSpace(*r.CollectionID); id == "" {
			r.CollectionID = nil
			r.detachCollection = true
		} else {
			*r.CollectionID = id
		}
	}
	r.Contexts = cleanList(r.Contexts)
	r.Synonyms = cleanList(r.Synonyms)
	r.Antonyms = cleanList(r.Antonyms)
	r.Collocations = cleanList(r.Collocations)
}

func (r *UpdateWordRequest) values() map[string]any {
	v := map[string]any{}
	if r.DefinitionEN != nil {
		v["definition_en"] = *r.DefinitionEN
	}
	if r.PartOfSpeech != nil {
		v["part_of_speech"] = *r.PartOfSpeech
	}
	if r.Pronunciation != nil {
		v["pronunciation"] = *r.Pronunciation
	}
	if r.CollectionID != nil {
		v["collection_id"] = *r.CollectionID
	}
	if r.detachCollection {
		v["collection_id"] = nil
	}
	if r.DifficultyLevel != nil {
		v["difficulty_level"] = *r.DifficultyLevel
	}
	if r.MasteryLevel != nil {
		v["mastery_level"] = *r.MasteryLevel
	}
	return v
}

// replacedLists returns the sub-lists present in the request, by relation kind.
func (r *UpdateWordRequest) replacedLists() map[string][]string {
	out := map[string][]string{}
	for kind, list := range map[string][]string{
		models.RelationContext:     r.Contexts,
		models.RelationSynonym:     r.Synonyms,
		models.RelationAntonym:     r.Antonyms,
		models.RelationCollocation: r.Collocations,
	} {
		if list != nil {
			out[kind] = list
		}
	}
	return out
}

type ReviewRequest struct {
	Correct *bool `json:"correct" validate:"required"`
}

// WordFilter narrows a word listing.
type WordFilter struct {
	CollectionID string `json:"collection_id,omitempty"`
	Difficulty   int    `json:"difficulty,omitempty"`
	MinMastery   *int   `json:"min_mastery,omitempty"`
	MaxMastery   *int   `json:"max_mastery,omitempty"`
	Search       string `json:"search,omitempty"`
	OrderBy      string `json:"order_by"`
	Desc         bool   `json:"desc"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
}

var wordOrderColumns = map[string]bool{
	"created_at":       true,
	"word":             true,
	"mastery_level":    true,
	"difficulty_level": true,
	"last_reviewed_at": true,
	"review_count":     true,
}

type CollectionRequest struct {
	Name           string `json:"name"            validate:"required,min=1,max=100"`
	Description    string `json:"description"     validate:"max=500"`
	CollectionType string `json:"collection_type" validate:"omitempty,oneof=custom topic source auto"`
	IsPublic       bool   `json:"is_public"`
}

func (r *CollectionRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.CollectionType = strings.ToLower(strings.TrimSpace(r.CollectionType))
}

type UpdateCollectionRequest struct {
	Name           *string `json:"name"            validate:"omitempty,min=1,max=100"`
	Description    *string `json:"description"     validate:"omitempty,max=500"`
	CollectionType *string `json:"collection_type" validate:"omitempty,oneof=custom topic source auto"`
	IsPublic       *bool   `json:"is_public"`
}

func (r *UpdateCollectionRequest) Normalize() {
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		*r.Description = strings.TrimSpace(*r.Description)
	}
	if r.CollectionType != nil {
		*r.CollectionType = strings.ToLower(strings.TrimSpace(*r.CollectionType))
	}
}

func (r *UpdateCollectionRequest) values() map[string]any {
	v := map[string]any{}
	if r.Name != nil {
		v["name"] = *r.Name
	}
	if r.Description != nil {
		v["description"] = *r.Description
	}
	if r.CollectionType != nil {
		v["collection_type"] = *r.CollectionType
	}
	if r.IsPublic != nil {
		v["is_public"] = *r.IsPublic
	}
	return v
}

type collectionPage struct {
	Items []models.VocabularyCollection `json:"items"`
	Total int64                         `json:"total"`
}

type wordPage struct {
	Items []models.VocabularyWord `json:"items"`
	Total int64                   `json:"total"`
}

// Stats summarizes a user's vocabulary.
type Stats struct {
	TotalWords       int64         `json:"total_words"`
	ReviewedWords    int64         `json:"reviewed_words"`
	MasteredWords    int64         `json:"mastered_words"`
	TotalReviews     int64         `json:"total_reviews"`
	Collections      int64         `json:"collections"`
	ByMastery        map[int]int64 `json:"by_mastery"`
	ByDifficulty     map[int]int64 `json:"by_difficulty"`
	AverageMastery   float64       `json:"average_mastery"`
	WordsAddedLast7d int64         `json:"words_added_last_7d"`
	ReviewedLast7d   int64         `json:"reviewed_last_7d"`
}
