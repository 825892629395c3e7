package models

import "time"

const (
	CollectionTypeCustom = "custom"
	CollectionTypeTopic  = "topic"
	CollectionTypeSource = "source"
	CollectionTypeAuto   = "auto"
)

// VocabularyCollection is a named, optionally public, list of words.
type VocabularyCollection struct {
	Base
	UserID         string `json:"user_id"         gorm:"type:varchar(36);index;not null"`
	Name           string `json:"name"            gorm:"size:100;not null"`
	Description    string `json:"description"     gorm:"size:500"`
	CollectionType string `json:"collection_type" gorm:"size:16;not null;default:custom"`
	IsPublic       bool   `json:"is_public"       gorm:"index"`
}

func (VocabularyCollection) TableName() string { return "vocabulary_collections" }

// VocabularyWord is unique per (user, word); Word is stored lower-cased.
type VocabularyWord struct {
	Base
	UserID          string         `json:"user_id"          gorm:"type:varchar(36);not null;uniqueIndex:idx_vocabulary_user_word,priority:1"`
	Word            string         `json:"word"             gorm:"size:100;not null;uniqueIndex:idx_vocabulary_user_word,priority:2"`
	DefinitionEN    string         `json:"definition_en"    gorm:"type:text;not null"`
	PartOfSpeech    string         `json:"part_of_speech"   gorm:"size:32"`
	Pronunciation   string         `json:"pronunciation"    gorm:"size:128"`
	CollectionID    *string        `json:"collection_id"    gorm:"type:varchar(36);index"`
	DifficultyLevel int            `json:"difficulty_level" gorm:"not null;default:1"`
	MasteryLevel    int            `json:"mastery_level"    gorm:"not null;default:0"`
	ReviewCount     int            `json:"review_count"     gorm:"not null;default:0"`
	LastReviewedAt  *time.Time     `json:"last_reviewed_at"`
	Relations       []WordRelation `json:"-"                gorm:"foreignKey:WordID"`

	Contexts     []string `json:"contexts"     gorm:"-"`
	Synonyms     []string `json:"synonyms"     gorm:"-"`
	Antonyms     []string `json:"antonyms"     gorm:"-"`
	Collocations []string `json:"collocations" gorm:"-"`
}

func (VocabularyWord) TableName() string { return "vocabulary_words" }

const (
	RelationContext     = "context"
	RelationSynonym     = "synonym"
	RelationAntonym     = "antonym"
	RelationCollocation = "collocation"
)

// WordRelation is one entry of a word's attached sub-lists.
type WordRelation struct {
	Base
	WordID   string `json:"word_id"  gorm:"type:varchar(36);index;not null"`
	Kind     string `json:"kind"     gorm:"size:16;index;not null"`
	Value    string `json:"value"    gorm:"size:500;not null"`
	Position int    `json:"position"`
}

func (WordRelation) TableName() string { return "word_relations" }

// Hydrate splits loaded relations into the per-kind string lists.
func (w *VocabularyWord) Hydrate() {
	w.Contexts, w.Synonyms, w.Antonyms, w.Collocations = []string{}, []string{}, []string{}, []string{}
	for _, r := range w.Relations {
		switch r.Kind {
		case RelationContext:
			w.Contexts = append(w.Contexts, r.Value)
		case RelationSynonym:
			w.Synonyms = append(w.Synonyms, r.Value)
		case RelationAntonym:
			w.Antonyms = append(w.Antonyms, r.Value)
		case RelationCollocation:
			w.Collocations = append(w.Collocations, r.Value)
		}
	}
}

// RelationRows builds relation rows for a word from per-kind lists.
func RelationRows(wordID string, contexts, synonyms, antonyms, collocations []string) []WordRelation {
	var rows []WordRelation
	add := func(kind string, values []string) {
		for i, v := range values {
			rows = append(rows, WordRelation{WordID: wordID, Kind: kind, Value: v, Position: i})
		}
	}
	add(RelationContext, contexts)
	add(RelationSynonym, synonyms)
	add(RelationAntonym, antonyms)
	add(RelationCollocation, collocations)
	return rows
}
