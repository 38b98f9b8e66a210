package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/metrics"
)

// LLM is a chat completion provider over an OpenAI-compatible endpoint.
// All three configured providers (OpenAI plus the Anthropic and Gemini
// compatibility surfaces) speak this protocol, so one adapter covers them.
type LLM struct {
	client  *openai.Client
	name    string
	model   string
	timeout time.Duration
}

var _ domain.LLMProvider = (*LLM)(nil)

// LLMConfig holds one provider's settings.
type LLMConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewLLM creates a chat completion provider.
func NewLLM(cfg *LLMConfig) *LLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLM{
		client:  openai.NewClientWithConfig(clientCfg),
		name:    cfg.Name,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Name implements domain.LLMProvider.
func (p *LLM) Name() string { return p.name }

// Model implements domain.LLMProvider.
func (p *LLM) Model() string { return p.model }

// Complete implements domain.LLMProvider with an explicit per-call timeout.
func (p *LLM) Complete(ctx context.Context, system, prompt string) (domain.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, p.model, "error").Inc()
		return domain.Completion{}, completionError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, p.model, "error").Inc()
		return domain.Completion{}, errors.New("empty completion response")
	}

	metrics.LLMRequestsTotal.WithLabelValues(p.name, p.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(p.name, p.model).Observe(duration.Seconds())

	return domain.Completion{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

func completionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	return fmt.Errorf("completion request failed: %w", err)
}
