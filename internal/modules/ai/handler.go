package ai

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/pkg/apperr"
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
	g := rg.Group("/ai", authMW)

	g.POST("/analyze/:kind", response.Handle(h.analyze))
	g.GET("/analyze/:kind", response.Handle(h.capability))
	g.GET("/usage", response.Handle(h.usage))
	g.GET("/status", response.Handle(h.status))
	g.POST("/embedding", response.Handle(h.embedding))
	g.POST("/generate", response.Handle(h.generate))
}

func (h *Handler) analyze(c *gin.Context) response.Outcome {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		return response.Fail(apperr.NotFound("Unknown analysis type"))
	}
	uid := middleware.CurrentUserID(c)

	var (
		a   *Analysis
		err error
	)
	switch kind {
	case KindWord:
		a, err = bindAndRun(c, func(ctx context.Context, req *WordRequest) (*Analysis, error) {
			return h.svc.AnalyzeWord(ctx, uid, req)
		})
	case KindSentence:
		a, err = bindAndRun(c, func(ctx context.Context, req *SentenceRequest) (*Analysis, error) {
			return h.svc.AnalyzeSentence(ctx, uid, req)
		})
	case KindParagraph:
		a, err = bindAndRun(c, func(ctx context.Context, req *ParagraphRequest) (*Analysis, error) {
			return h.svc.AnalyzeParagraph(ctx, uid, req)
		})
	}
	if err != nil {
		return response.Fail(err)
	}

	meta := gin.H{
		"model":             a.Model,
		"provider":          a.Provider,
		"tokensUsed":        a.TokensUsed,
		"remainingRequests": a.Remaining,
	}
	if a.AnalysisID != "" {
		meta["analysisId"] = a.AnalysisID
	}
	return response.OK(a.Result).WithMeta(meta)
}

func bindAndRun[R any](c *gin.Context, run func(context.Context, *R) (*Analysis, error)) (*Analysis, error) {
	req := new(R)
	if err := validate.Bind(c, req); err != nil {
		return nil, err
	}
	return run(c.Request.Context(), req)
}

// capability reports whether the caller can run an analysis of this kind now.
func (h *Handler) capability(c *gin.Context) response.Outcome {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		return response.Fail(apperr.NotFound("Unknown analysis type"))
	}
	q, err := h.svc.CheckUsage(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"kind": kind, "tier": q.Tier}).WithFields(gin.H{
		"available":         q.CanUseAI && q.HasFeature(string(kind)),
		"remainingRequests": q.RemainingRequests,
		"remainingTokens":   q.RemainingTokens,
		"features":          q.Features,
	})
}

func (h *Handler) usage(c *gin.Context) response.Outcome {
	q, err := h.svc.CheckUsage(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(q)
}

func (h *Handler) status(c *gin.Context) response.Outcome {
	providers := h.svc.ProviderStatus()
	available := false
	for _, p := range providers {
		if p.Default {
			available = true
		}
	}
	return response.OK(gin.H{"available": available, "providers": providers})
}

func (h *Handler) embedding(c *gin.Context) response.Outcome {
	var req EmbeddingRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	out, err := h.svc.GenerateEmbedding(c.Request.Context(), middleware.CurrentUserID(c), &req)
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(embeddingResponse{
		Embedding:  out.Vector,
		Dimensions: len(out.Vector),
		Model:      out.Model,
		Provider:   out.Provider,
		TokensUsed: out.TokensUsed,
	})
}

func (h *Handler) generate(c *gin.Context) response.Outcome {
	var req GenerateRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	uid := middleware.CurrentUserID(c)
	if !req.Stream {
		out, err := h.svc.GenerateText(c.Request.Context(), uid, &req)
		if err != nil {
			return response.Fail(err)
		}
		return response.OK(generateResponse{
			Text:       out.Text,
			Model:      out.Model,
			Provider:   out.Provider,
			TokensUsed: out.TokensUsed,
		})
	}

	// Headers go out with the first chunk so admission errors still get a
	// JSON envelope.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	out, err := h.svc.StreamText(c.Request.Context(), uid, &req, func(delta string) {
		start()
		c.SSEvent("delta", gin.H{"text": delta})
		c.Writer.Flush()
	})
	if err != nil {
		if !started {
			return response.Fail(err)
		}
		c.SSEvent("error", gin.H{"error": apperr.From(err).Message})
		c.Writer.Flush()
		return response.Streamed()
	}
	start()
	c.SSEvent("done", generateResponse{
		Model:      out.Model,
		Provider:   out.Provider,
		TokensUsed: out.TokensUsed,
	})
	c.Writer.Flush()
	return response.Streamed()
}
