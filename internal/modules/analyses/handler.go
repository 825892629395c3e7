package analyses

import (
	"strings"

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
	g := rg.Group("/analyses", authMW)

	g.POST("", response.Handle(h.save))
	g.GET("", response.Handle(h.list))
	g.GET("/:id", response.Handle(h.get))
	g.DELETE("/:id", response.Handle(h.delete))
}

func (h *Handler) save(c *gin.Context) response.Outcome {
	var req SaveRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.Save(c.Request.Context(), middleware.CurrentUserID(c), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.Created(row)
}

func (h *Handler) list(c *gin.Context) response.Outcome {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return response.Fail(err)
	}
	params := listParams{
		SessionID: strings.TrimSpace(c.Query("session_id")),
		Kind:      strings.ToLower(strings.TrimSpace(c.Query("kind"))),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}
	if params.SessionID != "" {
		if _, err := uuid.Parse(params.SessionID); err != nil {
			return response.Fail(apperr.Validation("session_id", "format", "session_id has an invalid format"))
		}
	}
	switch params.Kind {
	case "", "word", "sentence", "paragraph":
	default:
		return response.Fail(apperr.Validation("kind", "oneof", "kind must be one of: word, sentence, paragraph"))
	}

	out, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), params)
	if err != nil {
		return response.Fail(err)
	}
	return response.Paged(out.Items, response.NewPagination(out.Total, pg.Limit, pg.Offset))
}

func (h *Handler) get(c *gin.Context) response.Outcome {
	row, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(row)
}

func (h *Handler) delete(c *gin.Context) response.Outcome {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"id": id, "deleted": true})
}
