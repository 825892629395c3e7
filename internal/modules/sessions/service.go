package sessions

import (
	"context"
	"errors"

	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/pagination"
	"github.com/lexiflow/core/internal/pkg/querycache"
	"github.com/lexiflow/core/internal/pkg/querykey"
	"github.com/lexiflow/core/internal/pkg/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errNotFound = apperr.NotFound("Session not found")

// Service manages learning sessions. Sessions are private: a session owned by
// someone else is reported as missing.
type Service struct {
	db       *gorm.DB
	sessions *store.Table[models.LearningSession]
	analyses *store.Table[models.Analysis]
	cache    *querycache.Cache
	log      *zap.Logger
}

func NewService(db *gorm.DB, cache *querycache.Cache, log *zap.Logger) *Service {
	return &Service{
		db:       db,
		sessions: store.NewTable[models.LearningSession](db),
		analyses: store.NewTable[models.Analysis](db),
		cache:    cache,
		log:      log,
	}
}

func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*models.LearningSession, error) {
	settings := settingsOrNil(req.Settings)
	if settings == nil {
		settings = []byte("{}")
	}
	row := &models.LearningSession{
		UserID:         userID,
		Title:          req.Title,
		TargetLanguage: req.TargetLanguage,
		NativeLanguage: req.NativeLanguage,
		Status:         models.SessionStatusActive,
		Settings:       datatypes.JSON(settings),
	}
	if err := s.sessions.Insert(ctx, row); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return row, nil
}

// List returns the caller's sessions, newest first.
func (s *Service) List(ctx context.Context, userID, status string, pg pagination.Query) (*page, error) {
	params := listParams{Status: status, Limit: pg.Limit, Offset: pg.Offset}
	key := querykey.Tables.List(tableName, params).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*page, error) {
		filters := []store.Filter{store.Eq("user_id", userID)}
		if status != "" {
			filters = append(filters, store.Eq("status", status))
		}
		rows, total, err := s.sessions.Select(ctx, store.Query{
			Filters: filters,
			Order:   []store.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
			Page:    pg,
		})
		if err != nil {
			return nil, err
		}
		return &page{Items: rows, Total: total}, nil
	})
}

// Get returns one session with its analyses, newest first.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.LearningSession, error) {
	key := querykey.Tables.Detail(tableName, id).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.LearningSession, error) {
		row, err := s.sessions.First(ctx,
			[]store.Filter{store.Eq("id", id), store.Eq("user_id", userID)},
			store.Preload{Association: "Analyses", OrderBy: "created_at DESC"},
		)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, errNotFound
			}
			return nil, err
		}
		if row.Analyses == nil {
			row.Analyses = []models.Analysis{}
		}
		return row, nil
	})
}

// Owned fails with NotFound unless userID owns the session.
func (s *Service) Owned(ctx context.Context, userID, id string) error {
	ok, err := s.sessions.Exists(ctx, store.Eq("id", id), store.Eq("user_id", userID))
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return nil
}

func (s *Service) Update(ctx context.Context, userID, id string, req *UpdateRequest) (*models.LearningSession, error) {
	values := req.values()
	if len(values) > 0 {
		if err := s.sessions.UpdateOwned(ctx, id, userID, values); err != nil {
			return nil, ownedErr(err)
		}
		s.invalidate(ctx, userID)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the session and every analysis stored in it.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.Owned(ctx, userID, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.analyses.WithTx(tx).Delete(ctx, store.Eq("session_id", id), store.Eq("user_id", userID)); err != nil {
			return err
		}
		return ownedErr(s.sessions.WithTx(tx).DeleteOwned(ctx, id, userID))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.cache.InvalidateQuiet(ctx, querykey.Tables.Table("analyses").Scope(userID))
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	s.cache.InvalidateQuiet(ctx, querykey.Tables.Table(tableName).Scope(userID))
}

// ownedErr hides other users' sessions behind NotFound.
func ownedErr(err error) error {
	if err == nil {
		return nil
	}
	if store.IsNotFound(err) || errors.Is(err, store.ErrNotOwned) {
		return errNotFound
	}
	return err
}
