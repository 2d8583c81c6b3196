// Package llm asks a chat-completion model for follow-up actions on a query.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/models"
)

// DefaultMaxActions caps the actions returned when a request does not set Max.
const DefaultMaxActions = 3

// ActionRequest describes the query the engine suggests actions for.
type ActionRequest struct {
	Query    string
	Type     models.QuestionType
	Domains  []models.BusinessDomain
	Entities []models.Entity
	// History holds recent queries of the session, oldest first.
	History []string
	Max     int
}

// ConversationalEngine suggests next actions for a query.
type ConversationalEngine interface {
	SuggestActions(ctx context.Context, req ActionRequest) ([]string, error)
}

const systemPrompt = `You help analysts refine business questions.
Given a question, its intent and business domains, reply with short follow-up actions the analyst could take next.
One action per line, imperative mood, no numbering, no extra text.`

// OpenAIEngine calls an OpenAI-compatible chat completion API.
type OpenAIEngine struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewOpenAIEngine creates an engine from cfg. BaseURL selects a compatible endpoint.
func NewOpenAIEngine(cfg config.LLMConfig, logger *zap.Logger) *OpenAIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.Default().Collaborators.LLM
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger.Info("conversational engine initialized", zap.String("model", cfg.Model))

	return &OpenAIEngine{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// SuggestActions asks the model for follow-up actions and parses one action per line.
func (e *OpenAIEngine) SuggestActions(ctx context.Context, req ActionRequest) ([]string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	limit := req.Max
	if limit <= 0 {
		limit = DefaultMaxActions
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req, limit)},
		},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	e.logger.Debug("actions generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return ParseActions(resp.Choices[0].Message.Content, limit), nil
}

func userPrompt(req ActionRequest, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Query)
	fmt.Fprintf(&b, "Intent: %s\n", req.Type)
	if len(req.Domains) > 0 {
		names := make([]string, len(req.Domains))
		for i, d := range req.Domains {
			names[i] = d.DisplayName()
		}
		fmt.Fprintf(&b, "Domains: %s\n", strings.Join(names, ", "))
	}
	if len(req.Entities) > 0 {
		names := make([]string, len(req.Entities))
		for i, ent := range req.Entities {
			names[i] = ent.Text
		}
		fmt.Fprintf(&b, "Entities: %s\n", strings.Join(names, ", "))
	}
	if len(req.History) > 0 {
		fmt.Fprintf(&b, "Earlier questions:\n- %s\n", strings.Join(req.History, "\n- "))
	}
	fmt.Fprintf(&b, "Suggest at most %d actions.", limit)
	return b.String()
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\(\d+\))\s*`)

// ParseActions splits a model reply into at most limit trimmed, de-duplicated lines,
// removing bullets and numbering.
func ParseActions(content string, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, "\"")
		if line == "" || seen[strings.ToLower(line)] {
			continue
		}
		seen[strings.ToLower(line)] = true
		out = append(out, line)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// MockEngine returns fixed actions and records the requests it receives.
type MockEngine struct {
	Actions []string
	Err     error
	Delay   time.Duration

	mu       sync.Mutex
	requests []ActionRequest
}

// SuggestActions returns the configured actions after Delay, honouring ctx.
func (m *MockEngine) SuggestActions(ctx context.Context, req ActionRequest) ([]string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]string(nil), m.Actions...), nil
}

// Requests returns a copy of the received requests.
func (m *MockEngine) Requests() []ActionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActionRequest(nil), m.requests...)
}
