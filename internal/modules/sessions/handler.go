package sessions

import (
	"strings"

	"github.com/gin-gonic/gin"
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
	g := rg.Group("/sessions", authMW)

	g.POST("", response.Handle(h.create))
	g.GET("", response.Handle(h.list))
	g.GET("/:id", response.Handle(h.get))
	g.PATCH("/:id", response.Handle(h.update))
	g.DELETE("/:id", response.Handle(h.delete))
}

func (h *Handler) create(c *gin.Context) response.Outcome {
	var req CreateRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), &req)
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
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", "active", "completed", "archived":
	default:
		return response.Fail(apperr.Validation("status", "oneof", "status must be one of: active, completed, archived"))
	}
	out, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), status, pg)
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

func (h *Handler) update(c *gin.Context) response.Outcome {
	var req UpdateRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	row, err := h.svc.Update(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &req)
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
