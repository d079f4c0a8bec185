package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/logger"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	baseURL     string
	model       string
	searchModel string
	logger      *logger.Logger

	mu     sync.RWMutex
	client *openai.Client
}

func NewOpenAIProvider(cfg *config.Config, log *logger.Logger) *OpenAIProvider {
	p := &OpenAIProvider{
		baseURL:     cfg.AI.BaseURL,
		model:       cfg.AI.Model,
		searchModel: cfg.AI.SearchModel,
		logger:      log.With("component", "openai"),
	}
	p.client = p.newClient(cfg.AI.APIKey)
	return p
}

func (p *OpenAIProvider) newClient(apiKey string) *openai.Client {
	ocfg := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		ocfg.BaseURL = p.baseURL
	}
	return openai.NewClientWithConfig(ocfg)
}

// SetAPIKey swaps the credential used for subsequent calls.
func (p *OpenAIProvider) SetAPIKey(apiKey string) {
	c := p.newClient(apiKey)
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
	p.logger.Info("provider credential replaced")
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	if req.Search && p.searchModel != "" {
		model = p.searchModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	p.logger.Debug("sending completion request", "model", model, "search", req.Search, "history", len(req.History))

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	text := StripThinkTags(resp.Choices[0].Message.Content)
	p.logger.Debug("received completion", "model", model, "length", len(text))

	return &Response{Text: text, Sources: ExtractSources(text)}, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &ProviderError{Message: err.Error(), Err: err}
}
