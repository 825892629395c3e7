package vocabulary

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/pagination"
	"github.com/lexiflow/core/internal/pkg/response"
	"github.com/lexiflow/core/internal/pkg/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	v := rg.Group("/vocabulary", authMW)

	v.GET("/stats", response.Handle(h.stats))

	c := v.Group("/collections")
	c.POST("", response.Handle(h.createCollection))
	c.GET("", response.Handle(h.listCollections))
	c.GET("/:id", response.Handle(h.getCollection))
	c.PATCH("/:id", response.Handle(h.updateCollection))
	c.DELETE("/:id", response.Handle(h.deleteCollection))
	c.GET("/:id/words", response.Handle(h.collectionWords))

	w := v.Group("/words")
	w.POST("", response.Handle(h.createWord))
	w.POST("/batch", response.Handle(h.createWords))
	w.GET("", response.Handle(h.listWords))
	w.GET("/:id", response.Handle(h.getWord))
	w.PATCH("/:id", response.Handle(h.updateWord))
	w.POST("/:id/review", response.Handle(h.reviewWord))
	w.DELETE("/:id", response.Handle(h.deleteWord))
}

func (h *Handler) createWord(c *gin.Context) response.Outcome {
	var req WordInput
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.CreateWord(c.Request.Context(), middleware.CurrentUserID(c), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.Created(row)
}

func (h *Handler) createWords(c *gin.Context) response.Outcome {
	var req BatchRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	res, err := h.svc.CreateWords(c.Request.Context(), middleware.CurrentUserID(c), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.Created(res)
}

func (h *Handler) listWords(c *gin.Context) response.Outcome {
	f, err := wordFilterFromQuery(c)
	if err != nil {
		return response.Fail(err)
	}
	out, err := h.svc.ListWords(c.Request.Context(), middleware.CurrentUserID(c), f)
	if err != nil {
		return response.Fail(err)
	}
	return response.Paged(out.Items, response.NewPagination(out.Total, f.Limit, f.Offset))
}

func (h *Handler) getWord(c *gin.Context) response.Outcome {
	row, err := h.svc.GetWord(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) updateWord(c *gin.Context) response.Outcome {
	var req UpdateWordRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.UpdateWord(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) reviewWord(c *gin.Context) response.Outcome {
	var req ReviewRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.ReviewWord(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), *req.Correct)
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) deleteWord(c *gin.Context) response.Outcome {
	id := c.Param("id")
	if err := h.svc.DeleteWord(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"id": id, "deleted": true})
}

func (h *Handler) stats(c *gin.Context) response.Outcome {
	st, err := h.svc.Stats(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(st)
}

func (h *Handler) createCollection(c *gin.Context) response.Outcome {
	var req CollectionRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.CreateCollection(c.Request.Context(), middleware.CurrentUserID(c), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.Created(row)
}

func (h *Handler) listCollections(c *gin.Context) response.Outcome {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return response.Fail(err)
	}
	includePublic, _ := strconv.ParseBool(c.DefaultQuery("include_public", "false"))
	out, err := h.svc.ListCollections(c.Request.Context(), middleware.CurrentUserID(c), includePublic, pg)
	if err != nil {
		return response.Fail(err)
	}
	return response.Paged(out.Items, response.NewPagination(out.Total, pg.Limit, pg.Offset))
}

func (h *Handler) getCollection(c *gin.Context) response.Outcome {
	row, err := h.svc.GetCollection(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) updateCollection(c *gin.Context) response.Outcome {
	var req UpdateCollectionRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.UpdateCollection(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) deleteCollection(c *gin.Context) response.Outcome {
	id := c.Param("id")
	if err := h.svc.DeleteCollection(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"id": id, "deleted": true})
}

func (h *Handler) collectionWords(c *gin.Context) response.Outcome {
	f, err := wordFilterFromQuery(c)
	if err != nil {
		return response.Fail(err)
	}
	out, err := h.svc.CollectionWords(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), f)
	if err != nil {
		return response.Fail(err)
	}
	return response.Paged(out.Items, response.NewPagination(out.Total, f.Limit, f.Offset))
}

// wordFilterFromQuery parses listing parameters, rejecting out-of-range values.
func wordFilterFromQuery(c *gin.Context) (WordFilter, error) {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return WordFilter{}, err
	}
	f := WordFilter{Limit: pg.Limit, Offset: pg.Offset, OrderBy: "created_at", Desc: true}

	if id := strings.TrimSpace(c.Query("collection_id")); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return f, apperr.Validation("collection_id", "format", "collection_id has an invalid format")
		}
		f.CollectionID = id
	}
	if f.Difficulty, err = intParam(c, "difficulty", 1, 5); err != nil {
		return f, err
	}
	bounds := []struct {
		name string
		dst  **int
	}{{"min_mastery", &f.MinMastery}, {"max_mastery", &f.MaxMastery}}
	for _, b := range bounds {
		if strings.TrimSpace(c.Query(b.name)) == "" {
			continue
		}
		n, err := intParam(c, b.name, 0, maxMastery)
		if err != nil {
			return f, err
		}
		*b.dst = &n
	}
	if search := normalizeWord(c.Query("search")); search != "" {
		if utf8.RuneCountInString(search) > 100 {
			return f, apperr.Validation("search", "max_length", "search must be at most 100 characters")
		}
		f.Search = search
	}
	if by := strings.TrimSpace(c.Query("order_by")); by != "" {
		if !wordOrderColumns[by] {
			return f, apperr.Validation("order_by", "oneof", "order_by must be one of: created_at, word, mastery_level, difficulty_level, last_reviewed_at, review_count")
		}
		f.OrderBy = by
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("order"))) {
	case "", "desc":
	case "asc":
		f.Desc = false
	default:
		return f, apperr.Validation("order", "oneof", "order must be one of: asc, desc")
	}
	return f, nil
}

// intParam reads an optional integer query parameter within [lo, hi]; absent is 0.
func intParam(c *gin.Context, name string, lo, hi int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, apperr.Validation(name, "range", fmt.Sprintf("%s must be between %d and %d", name, lo, hi))
	}
	return n, nil
}
