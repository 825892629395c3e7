package vocabulary

import (
	"context"
	"errors"
	"time"

	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/pagination"
	"github.com/lexiflow/core/internal/pkg/querycache"
	"github.com/lexiflow/core/internal/pkg/querykey"
	"github.com/lexiflow/core/internal/pkg/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errWordNotFound       = apperr.NotFound("Word not found")
	errWordExists         = apperr.Conflict("Word already exists in your vocabulary")
	errCollectionNotFound = apperr.NotFound("Collection not found")
	errCollectionNotOwned = apperr.Forbidden("You do not own this collection")
)

const maxMastery = 5

type Service struct {
	db          *gorm.DB
	words       *store.Table[models.VocabularyWord]
	relations   *store.Table[models.WordRelation]
	collections *store.Table[models.VocabularyCollection]
	cache       *querycache.Cache
	log         *zap.Logger
	now         func() time.Time
}

func NewService(db *gorm.DB, cache *querycache.Cache, log *zap.Logger) *Service {
	return &Service{
		db:          db,
		words:       store.NewTable[models.VocabularyWord](db),
		relations:   store.NewTable[models.WordRelation](db),
		collections: store.NewTable[models.VocabularyCollection](db),
		cache:       cache,
		log:         log,
		now:         time.Now,
	}
}

// CreateWord stores a word with its sub-lists. A word the user already has
// is a Conflict.
func (s *Service) CreateWord(ctx context.Context, userID string, in *WordInput) (*models.VocabularyWord, error) {
	if in.CollectionID != "" {
		if err := s.ownCollection(ctx, userID, in.CollectionID); err != nil {
			return nil, err
		}
	}
	row := in.row(userID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.words.WithTx(tx).Insert(ctx, &row); err != nil {
			return err
		}
		rels := in.relations(row.ID)
		if _, err := s.relations.WithTx(tx).InsertMany(ctx, rels, false); err != nil {
			return err
		}
		row.Relations = rels
		return nil
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errWordExists
		}
		return nil, err
	}
	s.invalidateWords(ctx, userID)
	row.Hydrate()
	return &row, nil
}

// CreateWords stores a batch. Words the user already has, and repeats inside
// the batch, are skipped and reported instead of failing the batch.
func (s *Service) CreateWords(ctx context.Context, userID string, req *BatchRequest) (*BatchResult, error) {
	checked := map[string]bool{}
	for _, in := range req.Words {
		if in.CollectionID == "" || checked[in.CollectionID] {
			continue
		}
		if err := s.ownCollection(ctx, userID, in.CollectionID); err != nil {
			return nil, err
		}
		checked[in.CollectionID] = true
	}

	res := &BatchResult{Created: []models.VocabularyWord{}, Skipped: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		words := s.words.WithTx(tx)

		names := make([]string, 0, len(req.Words))
		for _, in := range req.Words {
			names = append(names, in.Word)
		}
		existing, _, err := words.Select(ctx, store.Query{
			Filters: []store.Filter{store.Eq("user_id", userID), store.In("word", names)},
		})
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing)+len(req.Words))
		for _, w := range existing {
			seen[w.Word] = true
		}

		rows := make([]models.VocabularyWord, 0, len(req.Words))
		inputs := make([]*WordInput, 0, len(req.Words))
		for i := range req.Words {
			in := &req.Words[i]
			if seen[in.Word] {
				res.Skipped = append(res.Skipped, in.Word)
				continue
			}
			seen[in.Word] = true
			rows = append(rows, in.row(userID))
			inputs = append(inputs, in)
		}
		if len(rows) == 0 {
			return nil
		}

		n, err := words.InsertMany(ctx, rows, true)
		if err != nil {
			return err
		}
		inserted := map[string]bool{}
		if int(n) == len(rows) {
			for _, r := range rows {
				inserted[r.ID] = true
			}
		} else {
			// A concurrent insert won some rows; find out which of ours landed.
			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = r.ID
			}
			landed, _, err := words.Select(ctx, store.Query{Filters: []store.Filter{store.In("id", ids)}})
			if err != nil {
				return err
			}
			for _, r := range landed {
				inserted[r.ID] = true
			}
		}

		var rels []models.WordRelation
		for i, r := range rows {
			if !inserted[r.ID] {
				res.Skipped = append(res.Skipped, r.Word)
				continue
			}
			wordRels := inputs[i].relations(r.ID)
			rels = append(rels, wordRels...)
			r.Relations = wordRels
			r.Hydrate()
			res.Created = append(res.Created, r)
		}
		_, err = s.relations.WithTx(tx).InsertMany(ctx, rels, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.CreatedCount = len(res.Created)
	res.SkippedCount = len(res.Skipped)
	if res.CreatedCount > 0 {
		s.invalidateWords(ctx, userID)
	}
	return res, nil
}

// ListWords returns the user's words matching f.
func (s *Service) ListWords(ctx context.Context, userID string, f WordFilter) (*wordPage, error) {
	key := querykey.Tables.List(wordsTable, f).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*wordPage, error) {
		return s.selectWords(ctx, s.wordFilters(userID, f), f)
	})
}

func (s *Service) wordFilters(userID string, f WordFilter) []store.Filter {
	filters := []store.Filter{store.Eq("user_id", userID)}
	if f.CollectionID != "" {
		filters = append(filters, store.Eq("collection_id", f.CollectionID))
	}
	if f.Difficulty > 0 {
		filters = append(filters, store.Eq("difficulty_level", f.Difficulty))
	}
	if f.MinMastery != nil {
		filters = append(filters, store.Gte("mastery_level", *f.MinMastery))
	}
	if f.MaxMastery != nil {
		filters = append(filters, store.Lte("mastery_level", *f.MaxMastery))
	}
	if f.Search != "" {
		filters = append(filters, store.Like("word", stripWildcards(f.Search)+"%"))
	}
	return filters
}

func (s *Service) selectWords(ctx context.Context, filters []store.Filter, f WordFilter) (*wordPage, error) {
	order := f.OrderBy
	if !wordOrderColumns[order] {
		order = "created_at"
	}
	rows, total, err := s.words.Select(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Column: order, Desc: f.Desc}, {Column: "id"}},
		Page:    pagination.Query{Limit: f.Limit, Offset: f.Offset},
		Preload: []store.Preload{{Association: "Relations", OrderBy: "position"}},
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Hydrate()
	}
	return &wordPage{Items: rows, Total: total}, nil
}

// GetWord returns one of the user's words with its sub-lists.
func (s *Service) GetWord(ctx context.Context, userID, id string) (*models.VocabularyWord, error) {
	key := querykey.Tables.Detail(wordsTable, id).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.VocabularyWord, error) {
		row, err := s.words.First(ctx,
			[]store.Filter{store.Eq("id", id), store.Eq("user_id", userID)},
			store.Preload{Association: "Relations", OrderBy: "position"},
		)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, errWordNotFound
			}
			return nil, err
		}
		row.Hydrate()
		return row, nil
	})
}

// UpdateWord changes fields and replaces the sub-lists present in req.
func (s *Service) UpdateWord(ctx context.Context, userID, id string, req *UpdateWordRequest) (*models.VocabularyWord, error) {
	if req.CollectionID != nil {
		if err := s.ownCollection(ctx, userID, *req.CollectionID); err != nil {
			return nil, err
		}
	}
	values := req.values()
	lists := req.replacedLists()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		words := s.words.WithTx(tx)
		if len(values) > 0 {
			if err := words.UpdateOwned(ctx, id, userID, values); err != nil {
				return wordErr(err)
			}
		} else {
			ok, err := words.Exists(ctx, store.Eq("id", id), store.Eq("user_id", userID))
			if err != nil {
				return err
			}
			if !ok {
				return errWordNotFound
			}
		}

		rels := s.relations.WithTx(tx)
		for kind, list := range lists {
			if _, err := rels.Delete(ctx, store.Eq("word_id", id), store.Eq("kind", kind)); err != nil {
				return err
			}
			rows := make([]models.WordRelation, len(list))
			for i, v := range list {
				rows[i] = models.WordRelation{WordID: id, Kind: kind, Value: v, Position: i}
			}
			if _, err := rels.InsertMany(ctx, rows, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateWords(ctx, userID)
	return s.GetWord(ctx, userID, id)
}

// ReviewWord records one review: the review count goes up and mastery moves
// one step toward 5 on a correct answer or toward 0 otherwise.
func (s *Service) ReviewWord(ctx context.Context, userID, id string, correct bool) (*models.VocabularyWord, error) {
	row, err := s.words.First(ctx, []store.Filter{store.Eq("id", id), store.Eq("user_id", userID)})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errWordNotFound
		}
		return nil, err
	}
	mastery := row.MasteryLevel
	if correct {
		mastery = min(mastery+1, maxMastery)
	} else {
		mastery = max(mastery-1, 0)
	}
	_, err = s.words.Update(ctx, map[string]any{
		"mastery_level":    mastery,
		"review_count":     gorm.Expr("review_count + ?", 1),
		"last_reviewed_at": s.now(),
	}, store.Eq("id", id), store.Eq("user_id", userID))
	if err != nil {
		return nil, err
	}
	s.invalidateWords(ctx, userID)
	return s.GetWord(ctx, userID, id)
}

func (s *Service) DeleteWord(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.words.WithTx(tx).Exists(ctx, store.Eq("id", id), store.Eq("user_id", userID))
		if err != nil {
			return err
		}
		if !ok {
			return errWordNotFound
		}
		if _, err := s.relations.WithTx(tx).Delete(ctx, store.Eq("word_id", id)); err != nil {
			return err
		}
		return wordErr(s.words.WithTx(tx).DeleteOwned(ctx, id, userID))
	})
	if err != nil {
		return err
	}
	s.invalidateWords(ctx, userID)
	return nil
}

// Stats summarizes the user's vocabulary.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	return querycache.Fetch(ctx, s.cache, querykey.Analytics.Vocabulary(userID), func(ctx context.Context) (*Stats, error) {
		return s.computeStats(ctx, userID)
	})
}

func (s *Service) computeStats(ctx context.Context, userID string) (*Stats, error) {
	st := &Stats{ByMastery: map[int]int64{}, ByDifficulty: map[int]int64{}}
	for lvl := 0; lvl <= maxMastery; lvl++ {
		st.ByMastery[lvl] = 0
	}
	for lvl := 1; lvl <= 5; lvl++ {
		st.ByDifficulty[lvl] = 0
	}

	type bucket struct {
		Level int
		N     int64
	}
	var buckets []bucket
	q := s.db.WithContext(ctx).Model(&models.VocabularyWord{}).Where("user_id = ?", userID)
	if err := q.Session(&gorm.Session{}).Select("mastery_level AS level, COUNT(*) AS n").
		Group("mastery_level").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	var masterySum int64
	for _, b := range buckets {
		st.ByMastery[b.Level] = b.N
		st.TotalWords += b.N
		masterySum += int64(b.Level) * b.N
		if b.Level == maxMastery {
			st.MasteredWords = b.N
		}
	}
	buckets = nil
	if err := q.Session(&gorm.Session{}).Select("difficulty_level AS level, COUNT(*) AS n").
		Group("difficulty_level").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		st.ByDifficulty[b.Level] = b.N
	}
	if st.TotalWords > 0 {
		st.AverageMastery = float64(masterySum) / float64(st.TotalWords)
	}

	var totals struct {
		Reviewed int64
		Reviews  int64
	}
	if err := q.Session(&gorm.Session{}).
		Select("COUNT(CASE WHEN review_count > 0 THEN 1 END) AS reviewed, COALESCE(SUM(review_count), 0) AS reviews").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	st.ReviewedWords, st.TotalReviews = totals.Reviewed, totals.Reviews

	weekAgo := s.now().Add(-7 * 24 * time.Hour)
	var err error
	if st.WordsAddedLast7d, err = s.words.Count(ctx, store.Eq("user_id", userID), store.Gte("created_at", weekAgo)); err != nil {
		return nil, err
	}
	if st.ReviewedLast7d, err = s.words.Count(ctx, store.Eq("user_id", userID), store.Gte("last_reviewed_at", weekAgo)); err != nil {
		return nil, err
	}
	if st.Collections, err = s.collections.Count(ctx, store.Eq("user_id", userID)); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) invalidateWords(ctx context.Context, userID string) {
	s.cache.InvalidateQuiet(ctx,
		querykey.Tables.Table(wordsTable).Scope(userID),
		querykey.Analytics.Vocabulary(userID),
	)
}

func wordErr(err error) error {
	if err == nil {
		return nil
	}
	if store.IsNotFound(err) || errors.Is(err, store.ErrNotOwned) {
		return errWordNotFound
	}
	return err
}

// stripWildcards removes LIKE metacharacters so a search is a plain prefix.
func stripWildcards(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
