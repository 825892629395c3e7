package analyses

import (
	"bytes"
	"context"
	"encoding/json"
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

var errNotFound = apperr.NotFound("Analysis not found")

// SessionOwner checks that a learning session belongs to a user.
type SessionOwner interface {
	Owned(ctx context.Context, userID, sessionID string) error
}

// Service stores analysis results. It is also the recorder the AI service
// writes into when a request names a session.
type Service struct {
	analyses *store.Table[models.Analysis]
	sessions SessionOwner
	cache    *querycache.Cache
	log      *zap.Logger
}

func NewService(db *gorm.DB, sessions SessionOwner, cache *querycache.Cache, log *zap.Logger) *Service {
	return &Service{
		analyses: store.NewTable[models.Analysis](db),
		sessions: sessions,
		cache:    cache,
		log:      log,
	}
}

// EnsureSession fails with NotFound unless userID owns sessionID.
func (s *Service) EnsureSession(ctx context.Context, userID, sessionID string) error {
	return s.sessions.Owned(ctx, userID, sessionID)
}

// SaveAnalysis stores an AI result into a session the caller owns and
// returns the new analysis id. Ownership is checked by the caller.
func (s *Service) SaveAnalysis(ctx context.Context, userID, sessionID, kind, input string, result json.RawMessage, model, provider string, tokens int64) (string, error) {
	row := &models.Analysis{
		UserID:     userID,
		Kind:       kind,
		Input:      input,
		Result:     datatypes.JSON(result),
		Model:      model,
		Provider:   provider,
		TokensUsed: int(tokens),
	}
	if sessionID != "" {
		row.SessionID = &sessionID
	}
	if err := s.analyses.Insert(ctx, row); err != nil {
		return "", err
	}
	s.invalidate(ctx, userID, sessionID != "")
	return row.ID, nil
}

// Save stores a client-supplied analysis.
func (s *Service) Save(ctx context.Context, userID string, req *SaveRequest) (*models.Analysis, error) {
	if trimmed := bytes.TrimSpace(req.Result); bytes.Equal(trimmed, []byte("null")) {
		return nil, apperr.Validation("result", "required", "result is required")
	}
	if req.SessionID != "" {
		if err := s.sessions.Owned(ctx, userID, req.SessionID); err != nil {
			return nil, err
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, req.Result); err != nil {
		return nil, apperr.Validation("result", "format", "result has an invalid format")
	}
	id, err := s.SaveAnalysis(ctx, userID, req.SessionID, req.Kind, req.Input, compact.Bytes(), req.Model, req.Provider, int64(req.TokensUsed))
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, params listParams) (*page, error) {
	key := querykey.Tables.List(tableName, params).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*page, error) {
		filters := []store.Filter{store.Eq("user_id", userID)}
		if params.SessionID != "" {
			filters = append(filters, store.Eq("session_id", params.SessionID))
		}
		if params.Kind != "" {
			filters = append(filters, store.Eq("kind", params.Kind))
		}
		rows, total, err := s.analyses.Select(ctx, store.Query{
			Filters: filters,
			Order:   []store.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
			Page:    pagination.Query{Limit: params.Limit, Offset: params.Offset},
		})
		if err != nil {
			return nil, err
		}
		return &page{Items: rows, Total: total}, nil
	})
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Analysis, error) {
	key := querykey.Tables.Detail(tableName, id).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.Analysis, error) {
		row, err := s.analyses.First(ctx, []store.Filter{store.Eq("id", id), store.Eq("user_id", userID)})
		if err != nil {
			if store.IsNotFound(err) {
				return nil, errNotFound
			}
			return nil, err
		}
		return row, nil
	})
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.analyses.DeleteOwned(ctx, id, userID); err != nil {
		if store.IsNotFound(err) || errors.Is(err, store.ErrNotOwned) {
			return errNotFound
		}
		return err
	}
	s.invalidate(ctx, userID, row.SessionID != nil)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string, inSession bool) {
	patterns := []querykey.Key{querykey.Tables.Table(tableName).Scope(userID)}
	if inSession {
		// Session details embed their analyses.
		patterns = append(patterns, querykey.Tables.Table("sessions").Scope(userID))
	}
	s.cache.InvalidateQuiet(ctx, patterns...)
}
