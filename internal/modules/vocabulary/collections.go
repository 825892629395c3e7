package vocabulary

import (
	"context"
	"errors"

	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/pkg/pagination"
	"github.com/lexiflow/core/internal/pkg/querycache"
	"github.com/lexiflow/core/internal/pkg/querykey"
	"github.com/lexiflow/core/internal/pkg/store"
	"gorm.io/gorm"
)

func (s *Service) CreateCollection(ctx context.Context, userID string, req *CollectionRequest) (*models.VocabularyCollection, error) {
	kind := req.CollectionType
	if kind == "" {
		kind = models.CollectionTypeCustom
	}
	row := &models.VocabularyCollection{
		UserID:         userID,
		Name:           req.Name,
		Description:    req.Description,
		CollectionType: kind,
		IsPublic:       req.IsPublic,
	}
	if err := s.collections.Insert(ctx, row); err != nil {
		return nil, err
	}
	s.invalidateCollections(ctx, userID)
	return row, nil
}

// ListCollections returns the user's collections, plus every public one when
// includePublic is set. Only the private listing is cached: public rows
// belong to other users whose writes cannot reach this user's cache scope.
func (s *Service) ListCollections(ctx context.Context, userID string, includePublic bool, pg pagination.Query) (*collectionPage, error) {
	load := func(ctx context.Context) (*collectionPage, error) {
		owner := store.Eq("user_id", userID)
		filter := owner
		if includePublic {
			filter = store.Any(owner, store.Eq("is_public", true))
		}
		rows, total, err := s.collections.Select(ctx, store.Query{
			Filters: []store.Filter{filter},
			Order:   []store.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
			Page:    pg,
		})
		if err != nil {
			return nil, err
		}
		return &collectionPage{Items: rows, Total: total}, nil
	}
	if includePublic {
		return load(ctx)
	}
	key := querykey.Tables.List(collectionsTable, pg).Scope(userID)
	return querycache.Fetch(ctx, s.cache, key, load)
}

// GetCollection returns a collection the user owns or that is public.
func (s *Service) GetCollection(ctx context.Context, userID, id string) (*models.VocabularyCollection, error) {
	row, err := s.collections.First(ctx, []store.Filter{
		store.Eq("id", id),
		store.Any(store.Eq("user_id", userID), store.Eq("is_public", true)),
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errCollectionNotFound
		}
		return nil, err
	}
	return row, nil
}

// UpdateCollection is owner-only: a missing collection is NotFound, someone
// else's is Forbidden.
func (s *Service) UpdateCollection(ctx context.Context, userID, id string, req *UpdateCollectionRequest) (*models.VocabularyCollection, error) {
	values := req.values()
	if len(values) == 0 {
		if err := s.ownCollection(ctx, userID, id); err != nil {
			return nil, err
		}
	} else if err := s.collections.UpdateOwned(ctx, id, userID, values); err != nil {
		return nil, collectionErr(err)
	}
	s.invalidateCollections(ctx, userID)
	return s.GetCollection(ctx, userID, id)
}

// DeleteCollection removes the collection and detaches its words.
func (s *Service) DeleteCollection(ctx context.Context, userID, id string) error {
	if err := s.ownCollection(ctx, userID, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.words.WithTx(tx).Update(ctx, map[string]any{"collection_id": nil},
			store.Eq("collection_id", id), store.Eq("user_id", userID)); err != nil {
			return err
		}
		return collectionErr(s.collections.WithTx(tx).DeleteOwned(ctx, id, userID))
	})
	if err != nil {
		return err
	}
	s.invalidateCollections(ctx, userID)
	s.invalidateWords(ctx, userID)
	return nil
}

// CollectionWords lists the words of a collection the user can see. For a
// public collection these are the owner's words.
func (s *Service) CollectionWords(ctx context.Context, userID, id string, f WordFilter) (*wordPage, error) {
	c, err := s.GetCollection(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	f.CollectionID = c.ID
	if c.UserID == userID {
		return s.ListWords(ctx, userID, f)
	}
	return s.selectWords(ctx, s.wordFilters(c.UserID, f), f)
}

// ownCollection fails unless the collection exists and belongs to userID.
func (s *Service) ownCollection(ctx context.Context, userID, id string) error {
	row, err := s.collections.First(ctx, []store.Filter{store.Eq("id", id)})
	if err != nil {
		if store.IsNotFound(err) {
			return errCollectionNotFound
		}
		return err
	}
	if row.UserID != userID {
		return errCollectionNotOwned
	}
	return nil
}

func (s *Service) invalidateCollections(ctx context.Context, userID string) {
	s.cache.InvalidateQuiet(ctx,
		querykey.Tables.Table(collectionsTable).Scope(userID),
		querykey.Analytics.Vocabulary(userID),
	)
}

func collectionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return errCollectionNotFound
	case errors.Is(err, store.ErrNotOwned):
		return errCollectionNotOwned
	default:
		return err
	}
}
