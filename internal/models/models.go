package models

// All lists every model managed by auto-migration.
func All() []any {
	return []any{
		&User{},
		&UserSession{},
		&LearningSession{},
		&Analysis{},
		&VocabularyCollection{},
		&VocabularyWord{},
		&WordRelation{},
	}
}
