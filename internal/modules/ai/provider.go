package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lexiflow/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
)

var (
	errEmptyResponse        = errors.New("empty response from AI")
	errEmbeddingUnsupported = errors.New("provider does not support embeddings")
)

// Prompt is one system+user exchange.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Completion is a finished model response.
type Completion struct {
	Text       string
	Model      string
	Provider   string
	TokensUsed int64
}

// Embedding is a vector for one input text.
type Embedding struct {
	Vector     []float64
	Model      string
	Provider   string
	TokensUsed int64
}

// Generator talks to one configured provider.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (*Completion, error)
	// Stream calls onDelta for each text chunk and returns the assembled completion.
	Stream(ctx context.Context, p Prompt, onDelta func(string)) (*Completion, error)
	Embed(ctx context.Context, text string) (*Embedding, error)
}

func isOpenAICompatibleProviderType(raw string) bool {
	t := normalizeProviderType(raw)
	return t == "openai-compatible" || t == "openaicompatible"
}

func isAnthropicProviderType(raw string) bool {
	return normalizeProviderType(raw) == "anthropic"
}

func isOpenRouterProviderType(raw string) bool {
	return normalizeProviderType(raw) == "openrouter"
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

// newGenerator builds the adapter for a provider entry.
func newGenerator(p config.AIProvider, ai config.AIConfig) (Generator, error) {
	apiKey := strings.TrimSpace(p.APIKey)
	if apiKey == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	modelID := strings.TrimSpace(p.DefaultModel)
	endpoint := strings.TrimSpace(p.Endpoint)

	switch {
	case isAnthropicProviderType(p.Type):
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		return &anthropicGenerator{
			id:        p.ID,
			model:     modelID,
			maxTokens: ai.MaxOutputTokens,
			client:    anthropicclient.NewClient(opts...),
		}, nil

	case isOpenAICompatibleProviderType(p.Type):
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		return &compatibleGenerator{
			id:        p.ID,
			model:     modelID,
			maxTokens: ai.MaxOutputTokens,
			apiKey:    apiKey,
			endpoint:  normalizeOpenAICompatibleEndpoint(endpoint),
			http:      &http.Client{Timeout: ai.Timeout},
			embedder:  newOpenAIGenerator(p.ID, modelID, apiKey, endpoint, ai),
		}, nil

	default:
		if isOpenRouterProviderType(p.Type) && endpoint == "" {
			endpoint = "https://openrouter.ai/api"
		}
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		return newOpenAIGenerator(p.ID, modelID, apiKey, endpoint, ai), nil
	}
}

type anthropicGenerator struct {
	id        string
	model     string
	maxTokens int
	client    anthropicclient.Client
}

func (g *anthropicGenerator) Generate(ctx context.Context, p Prompt) (*Completion, error) {
	params := anthropicclient.MessageNewParams{
		Model:     anthropicclient.Model(g.model),
		MaxTokens: int64(pickMaxTokens(p.MaxTokens, g.maxTokens)),
		Messages: []anthropicclient.MessageParam{
			anthropicclient.NewUserMessage(anthropicclient.NewTextBlock(p.User)),
		},
	}
	if strings.TrimSpace(p.System) != "" {
		params.System = []anthropicclient.TextBlockParam{{Text: p.System}}
	}
	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var full strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			full.WriteString(block.Text)
		}
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyResponse
	}
	return &Completion{
		Text:       text,
		Model:      string(msg.Model),
		Provider:   g.id,
		TokensUsed: msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}, nil
}

// Stream falls back to a single chunk; Anthropic output is not streamed here.
func (g *anthropicGenerator) Stream(ctx context.Context, p Prompt, onDelta func(string)) (*Completion, error) {
	out, err := g.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	if onDelta != nil {
		onDelta(out.Text)
	}
	return out, nil
}

func (g *anthropicGenerator) Embed(context.Context, string) (*Embedding, error) {
	return nil, errEmbeddingUnsupported
}

type openaiGenerator struct {
	id             string
	model          string
	embeddingModel string
	maxTokens      int
	client         openaiclient.Client
}

func newOpenAIGenerator(id, modelID, apiKey, endpoint string, ai config.AIConfig) *openaiGenerator {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	return &openaiGenerator{
		id:             id,
		model:          modelID,
		embeddingModel: ai.EmbeddingModel,
		maxTokens:      ai.MaxOutputTokens,
		client:         openaiclient.NewClient(opts...),
	}
}

func (g *openaiGenerator) Generate(ctx context.Context, p Prompt) (*Completion, error) {
	messages := make([]openaiclient.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, openaiclient.SystemMessage(p.System))
	}
	messages = append(messages, openaiclient.UserMessage(p.User))

	resp, err := g.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model:               g.model,
		Messages:            messages,
		MaxCompletionTokens: openaiclient.Int(int64(pickMaxTokens(p.MaxTokens, g.maxTokens))),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, errEmptyResponse
	}
	return &Completion{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		Provider:   g.id,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Stream uses the jetify stream; token usage is estimated from text length.
func (g *openaiGenerator) Stream(ctx context.Context, p Prompt, onDelta func(string)) (*Completion, error) {
	model := jetopenai.NewLanguageModel(g.model, jetopenai.WithClient(g.client))
	streamResp, err := jetai.StreamText(
		ctx,
		buildAIPromptMessages(p.System, p.User),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(pickMaxTokens(p.MaxTokens, g.maxTokens)),
	)
	if err != nil {
		return nil, err
	}
	var full strings.Builder
	for event := range streamResp.Stream {
		switch evt := event.(type) {
		case *jetapi.TextDeltaEvent:
			if evt.TextDelta == "" {
				continue
			}
			full.WriteString(evt.TextDelta)
			if onDelta != nil {
				onDelta(evt.TextDelta)
			}
		case *jetapi.ErrorEvent:
			if evt.Err == nil {
				return nil, errors.New("AI stream returned an unknown error")
			}
			return nil, fmt.Errorf("%v", evt.Err)
		}
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyResponse
	}
	return &Completion{
		Text:       text,
		Model:      g.model,
		Provider:   g.id,
		TokensUsed: estimateTokens(p.System) + estimateTokens(p.User) + estimateTokens(text),
	}, nil
}

func (g *openaiGenerator) Embed(ctx context.Context, text string) (*Embedding, error) {
	resp, err := g.client.Embeddings.New(ctx, openaiclient.EmbeddingNewParams{
		Input: openaiclient.EmbeddingNewParamsInputUnion{OfString: openaiclient.String(text)},
		Model: g.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errEmptyResponse
	}
	return &Embedding{
		Vector:     resp.Data[0].Embedding,
		Model:      resp.Model,
		Provider:   g.id,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// compatibleGenerator speaks the chat completions wire format directly, for
// gateways that only implement a subset of the OpenAI API.
type compatibleGenerator struct {
	id        string
	model     string
	maxTokens int
	apiKey    string
	endpoint  string
	http      *http.Client
	embedder  *openaiGenerator
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *compatibleGenerator) request(ctx context.Context, p Prompt, stream bool) (*http.Response, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.User})

	payload := map[string]any{
		"model":      g.model,
		"messages":   messages,
		"max_tokens": pickMaxTokens(p.MaxTokens, g.maxTokens),
	}
	if stream {
		payload["stream"] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai-compatible error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp, nil
}

func (g *compatibleGenerator) Generate(ctx context.Context, p Prompt) (*Completion, error) {
	resp, err := g.request(ctx, p, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int64 `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return nil, fmt.Errorf("openai-compatible error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, errEmptyResponse
	}
	model := result.Model
	if model == "" {
		model = g.model
	}
	tokens := result.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(p.System) + estimateTokens(p.User) + estimateTokens(result.Choices[0].Message.Content)
	}
	return &Completion{
		Text:       result.Choices[0].Message.Content,
		Model:      model,
		Provider:   g.id,
		TokensUsed: tokens,
	}, nil
}

func (g *compatibleGenerator) Stream(ctx context.Context, p Prompt, onDelta func(string)) (*Completion, error) {
	resp, err := g.request(ctx, p, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, err := readChatStream(resp.Body, onDelta)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text:       text,
		Model:      g.model,
		Provider:   g.id,
		TokensUsed: estimateTokens(p.System) + estimateTokens(p.User) + estimateTokens(text),
	}, nil
}

func (g *compatibleGenerator) Embed(ctx context.Context, text string) (*Embedding, error) {
	return g.embedder.Embed(ctx, text)
}

// readChatStream consumes chat completion SSE lines until [DONE] or EOF.
func readChatStream(r io.Reader, onDelta func(string)) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
			continue
		}
		token := event.Choices[0].Delta.Content
		full.WriteString(token)
		if onDelta != nil {
			onDelta(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	result := full.String()
	if strings.TrimSpace(result) == "" {
		return "", errEmptyResponse
	}
	return result, nil
}

func buildAIPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

// unmarshalAIJSON decodes model output that should be JSON but may be wrapped
// in code fences or surrounded by prose.
func unmarshalAIJSON(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}
	return errors.New("invalid JSON response from AI")
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}
	parsed.Path = strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/v1")
	return strings.TrimRight(parsed.String(), "/")
}

func pickMaxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	if fallback > 0 {
		return fallback
	}
	return 1200
}

// estimateTokens approximates token count at four bytes per token.
func estimateTokens(s string) int64 {
	if s == "" {
		return 0
	}
	return int64(len(s)+3) / 4
}

// withTimeout bounds a provider call when a timeout is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
