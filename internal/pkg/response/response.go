package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
)

const contextKeyDebug = "response.debug"

// Details names the first failing field of a rejected request.
type Details struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// Pagination metadata returned with list responses.
type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// NewPagination derives has_more from the window and the total row count.
func NewPagination(total int64, limit, offset int) Pagination {
	return Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	}
}

// Outcome is the result of a handler: either a success payload or an error.
// Handlers return an Outcome and Handle writes the envelope.
type Outcome struct {
	status   int
	data     any
	meta     gin.H
	extra    gin.H
	err      *apperr.Error
	streamed bool
}

// OK is a 200 success outcome.
func OK(data any) Outcome { return Outcome{status: http.StatusOK, data: data} }

// Created is a 201 success outcome.
func Created(data any) Outcome { return Outcome{status: http.StatusCreated, data: data} }

// Paged is a 200 success outcome carrying pagination.
func Paged(data any, p Pagination) Outcome {
	return Outcome{status: http.StatusOK, data: data, extra: gin.H{"pagination": p}}
}

// Fail converts err into an error outcome.
func Fail(err error) Outcome {
	e := apperr.From(err)
	if e == nil {
		e = apperr.Internal(nil)
	}
	return Outcome{status: e.Status(), err: e}
}

// Streamed marks a response the handler already wrote itself (server-sent events).
func Streamed() Outcome { return Outcome{streamed: true} }

// WithMeta adds metadata fields; timestamp is filled in automatically.
func (o Outcome) WithMeta(kv gin.H) Outcome {
	if o.meta == nil {
		o.meta = gin.H{}
	}
	for k, v := range kv {
		o.meta[k] = v
	}
	return o
}

// WithFields adds top-level fields next to success/data.
func (o Outcome) WithFields(kv gin.H) Outcome {
	if o.extra == nil {
		o.extra = gin.H{}
	}
	for k, v := range kv {
		o.extra[k] = v
	}
	return o
}

// Err returns the error carried by the outcome, if any.
func (o Outcome) Err() *apperr.Error { return o.err }

// Status returns the HTTP status the outcome will be written with.
func (o Outcome) Status() int { return o.status }

// Handle adapts an Outcome-returning handler to gin.
func Handle(fn func(*gin.Context) Outcome) gin.HandlerFunc {
	return func(c *gin.Context) {
		Write(c, fn(c))
	}
}

// Write renders the envelope for an outcome.
func Write(c *gin.Context, o Outcome) {
	if o.streamed {
		return
	}
	if o.err != nil {
		writeError(c, o.err, false)
		return
	}

	body := gin.H{"success": true, "data": o.data}
	for k, v := range o.extra {
		body[k] = v
	}
	if o.meta != nil {
		if _, ok := o.meta["timestamp"]; !ok {
			o.meta["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		}
		body["metadata"] = o.meta
	}
	status := o.status
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, body)
}

// Abort writes an error envelope and stops the middleware chain.
func Abort(c *gin.Context, err error) {
	e := apperr.From(err)
	if e == nil {
		e = apperr.Internal(nil)
	}
	writeError(c, e, true)
}

func writeError(c *gin.Context, e *apperr.Error, abort bool) {
	body := gin.H{"success": false, "error": e.Message}
	if e.Field != "" || e.Constraint != "" {
		body["details"] = Details{Field: e.Field, Constraint: e.Constraint}
	}
	if debugEnabled(c) {
		if d := e.Debug(); d != "" {
			body["debug"] = d
		}
	}
	if e.Kind == apperr.KindInternal {
		_ = c.Error(e)
	}
	if abort {
		c.AbortWithStatusJSON(e.Status(), body)
		return
	}
	c.JSON(e.Status(), body)
}

// EnableDebug makes error envelopes of this request include the raw cause.
func EnableDebug(c *gin.Context) { c.Set(contextKeyDebug, true) }

func debugEnabled(c *gin.Context) bool {
	return c.GetBool(contextKeyDebug)
}
