package eino

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderFake   = "fake"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Config represents the configuration for the generation service.
type Config struct {
	Provider string `json:"provider"` // "gemini", "openai" or "fake"
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model"`
	Timeout  time.Duration
}

// Generation is one model answer plus provenance.
type Generation struct {
	Content  string
	Metadata map[string]any
}

type taskKey struct{}

// WithTask records which task a generation call serves. Generators report it
// in their metadata.
func WithTask(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskKey{}, name)
}

// TaskFromContext returns the task set by WithTask, or "".
func TaskFromContext(ctx context.Context) string {
	name, _ := ctx.Value(taskKey{}).(string)
	return name
}

// Generator is the generation service: one synchronous, single-shot call.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (*Generation, error)
}

// New builds the generator named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGeminiService(cfg)
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	case ProviderFake, "":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s. Supported: %s", cfg.Provider, strings.Join(GetAvailableProviders(), ", "))
	}
}

func GetAvailableProviders() []string {
	return []string{ProviderGemini, ProviderOpenAI, ProviderFake}
}

// Service runs generation through an eino chat model.
type Service struct {
	config    Config
	chatModel model.BaseChatModel
}

// NewGeminiService wires Google Gemini through eino's gemini component.
func NewGeminiService(cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	geminiModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	return NewServiceWithModel(cfg, geminiModel), nil
}

// NewServiceWithModel wraps a pre-configured chat model.
func NewServiceWithModel(cfg Config, chatModel model.BaseChatModel) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Service{config: cfg, chatModel: chatModel}
}

func (s *Service) Generate(ctx context.Context, prompt, systemInstruction string) (*Generation, error) {
	if s.chatModel == nil {
		return nil, fmt.Errorf("chat model not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	messages := make([]*schema.Message, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, schema.SystemMessage(systemInstruction))
	}
	messages = append(messages, schema.UserMessage(prompt))

	started := time.Now()
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyResponse
	}

	meta := map[string]any{
		"provider":     s.config.Provider,
		"model":        s.config.Model,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"latency_ms":   time.Since(started).Milliseconds(),
	}
	if task := TaskFromContext(ctx); task != "" {
		meta["task"] = task
	}
	if resp.ResponseMeta != nil {
		if u := resp.ResponseMeta.Usage; u != nil {
			meta["input_tokens"] = u.PromptTokens
			meta["output_tokens"] = u.CompletionTokens
			meta["total_tokens"] = u.TotalTokens
		}
		if resp.ResponseMeta.FinishReason != "" {
			meta["finish_reason"] = resp.ResponseMeta.FinishReason
		}
	}
	return &Generation{Content: resp.Content, Metadata: meta}, nil
}
