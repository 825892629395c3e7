package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lexiflow/core/internal/pkg/apperr"
	"go.uber.org/zap"
)

// Recorder persists analysis results into the caller's learning sessions.
type Recorder interface {
	// EnsureSession fails with NotFound unless userID owns sessionID.
	EnsureSession(ctx context.Context, userID, sessionID string) error
	SaveAnalysis(ctx context.Context, userID, sessionID, kind, input string, result json.RawMessage, model, provider string, tokens int64) (string, error)
}

type Service struct {
	registry *Registry
	meter    *Meter
	recorder Recorder
	timeout  time.Duration
	log      *zap.Logger
}

func NewService(registry *Registry, meter *Meter, recorder Recorder, timeout time.Duration, log *zap.Logger) *Service {
	return &Service{registry: registry, meter: meter, recorder: recorder, timeout: timeout, log: log}
}

// CheckUsage returns the caller's quota.
func (s *Service) CheckUsage(ctx context.Context, userID string) (*Quota, error) {
	q, err := s.meter.Check(ctx, userID)
	if err != nil {
		return nil, apperr.From(err)
	}
	return q, nil
}

// ProviderStatus lists configured providers.
func (s *Service) ProviderStatus() []ProviderStatus {
	return s.registry.Status()
}

func (s *Service) AnalyzeWord(ctx context.Context, userID string, req *WordRequest) (*Analysis, error) {
	return s.analyze(ctx, userID, KindWord, req.Word, req.Target, buildWordPrompt(req))
}

func (s *Service) AnalyzeSentence(ctx context.Context, userID string, req *SentenceRequest) (*Analysis, error) {
	return s.analyze(ctx, userID, KindSentence, req.Sentence, req.Target, buildSentencePrompt(req))
}

func (s *Service) AnalyzeParagraph(ctx context.Context, userID string, req *ParagraphRequest) (*Analysis, error) {
	return s.analyze(ctx, userID, KindParagraph, req.Paragraph, req.Target, buildParagraphPrompt(req))
}

// admit checks quota and the tier feature before any provider call.
func (s *Service) admit(ctx context.Context, userID, feature string) (*Quota, error) {
	q, err := s.CheckUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !q.CanUseAI {
		return nil, apperr.QuotaExceeded("")
	}
	if !q.HasFeature(feature) {
		return nil, apperr.Forbidden("This feature is not available on your plan")
	}
	return q, nil
}

func (s *Service) analyze(ctx context.Context, userID string, kind Kind, input string, target Target, prompt Prompt) (*Analysis, error) {
	q, err := s.admit(ctx, userID, string(kind))
	if err != nil {
		return nil, err
	}
	if target.SessionID != "" {
		if s.recorder == nil {
			return nil, apperr.NotFound("Session not found")
		}
		if err := s.recorder.EnsureSession(ctx, userID, target.SessionID); err != nil {
			return nil, err
		}
	}

	gen, _, ok := s.registry.Select()
	if !ok {
		return nil, apperr.New(apperr.KindUpstreamFailure, "No AI provider configured")
	}
	res, err := s.reserve(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	out, err := gen.Generate(callCtx, prompt)
	if err != nil {
		s.release(ctx, res)
		s.log.Warn("AI analysis failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, apperr.Upstream("AI analysis failed", err)
	}

	// Tokens were spent even when the payload turns out unusable.
	s.charge(ctx, res, out.TokensUsed)

	raw, err := extractResult(out.Text)
	if err != nil {
		return nil, apperr.Upstream("AI returned an invalid response", err)
	}

	a := &Analysis{
		Kind:       kind,
		Input:      input,
		Result:     raw,
		Model:      out.Model,
		Provider:   out.Provider,
		TokensUsed: out.TokensUsed,
		Remaining:  res.Remaining,
	}
	if target.SessionID != "" {
		id, err := s.recorder.SaveAnalysis(ctx, userID, target.SessionID, string(kind), input, raw, out.Model, out.Provider, out.TokensUsed)
		if err != nil {
			return nil, err
		}
		a.AnalysisID = id
	}
	return a, nil
}

// extractResult pulls the JSON object out of model output, keeping its
// key order.
func extractResult(text string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := unmarshalAIJSON(text, &raw); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		return nil, errors.New("AI response is not a JSON object")
	}
	return buf.Bytes(), nil
}

func (s *Service) reserve(ctx context.Context, userID string, q *Quota) (*Reservation, error) {
	res, err := s.meter.Reserve(ctx, userID, q)
	if errors.Is(err, errQuotaSpent) {
		return nil, apperr.QuotaExceeded("")
	}
	if err != nil {
		return nil, apperr.From(err)
	}
	return res, nil
}

func (s *Service) charge(ctx context.Context, res *Reservation, tokens int64) {
	if err := res.Charge(ctx, tokens); err != nil {
		s.log.Warn("record AI usage failed", zap.String("user_id", res.userID), zap.Error(err))
	}
}

func (s *Service) release(ctx context.Context, res *Reservation) {
	if err := res.Release(ctx); err != nil {
		s.log.Warn("release AI usage failed", zap.String("user_id", res.userID), zap.Error(err))
	}
}

// GenerateText runs a free-form prompt.
func (s *Service) GenerateText(ctx context.Context, userID string, req *GenerateRequest) (*Completion, error) {
	q, err := s.admit(ctx, userID, featureGenerate)
	if err != nil {
		return nil, err
	}
	gen, _, ok := s.registry.Select()
	if !ok {
		return nil, apperr.New(apperr.KindUpstreamFailure, "No AI provider configured")
	}
	res, err := s.reserve(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	out, err := gen.Generate(callCtx, Prompt{System: req.System, User: req.Prompt, MaxTokens: req.MaxTokens})
	if err != nil {
		s.release(ctx, res)
		return nil, apperr.Upstream("AI generation failed", err)
	}
	s.charge(ctx, res, out.TokensUsed)
	return out, nil
}

// StreamText is GenerateText delivering chunks through onDelta. Admission
// errors are returned before any chunk is sent. A stream that fails after
// sending chunks is still charged for them.
func (s *Service) StreamText(ctx context.Context, userID string, req *GenerateRequest, onDelta func(string)) (*Completion, error) {
	q, err := s.admit(ctx, userID, featureGenerate)
	if err != nil {
		return nil, err
	}
	gen, _, ok := s.registry.Select()
	if !ok {
		return nil, apperr.New(apperr.KindUpstreamFailure, "No AI provider configured")
	}
	res, err := s.reserve(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	prompt := Prompt{System: req.System, User: req.Prompt, MaxTokens: req.MaxTokens}
	var sent strings.Builder
	out, err := gen.Stream(callCtx, prompt, func(delta string) {
		sent.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		if sent.Len() == 0 {
			s.release(ctx, res)
		} else {
			s.charge(ctx, res, estimateTokens(prompt.System)+estimateTokens(prompt.User)+estimateTokens(sent.String()))
		}
		return nil, apperr.Upstream("AI generation failed", err)
	}
	s.charge(ctx, res, out.TokensUsed)
	return out, nil
}

// GenerateEmbedding embeds text with the first embedding-capable provider.
func (s *Service) GenerateEmbedding(ctx context.Context, userID string, req *EmbeddingRequest) (*Embedding, error) {
	q, err := s.admit(ctx, userID, featureEmbedding)
	if err != nil {
		return nil, err
	}
	gen, _, ok := s.registry.Embedder()
	if !ok {
		return nil, apperr.New(apperr.KindUpstreamFailure, "No embedding provider configured")
	}
	res, err := s.reserve(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	out, err := gen.Embed(callCtx, req.Text)
	if err != nil {
		s.release(ctx, res)
		return nil, apperr.Upstream("Embedding generation failed", err)
	}
	s.charge(ctx, res, out.TokensUsed)
	return out, nil
}
