package provider

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls the hosted OpenAI API or any OpenAI-compatible
// inference server (set baseURL for a local backend such as Ollama or vLLM).
type OpenAIProvider struct {
	client  openai.Client
	name    string
	model   string
	timeout time.Duration
}

// NewOpenAIProvider creates a provider. baseURL may be empty for the hosted
// API; a non-empty baseURL targets a self-hosted compatible server, in which
// case the API key may be empty.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai provider requires an API key or a base URL")
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	name := "openai"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		name = "openai-compatible"
	}

	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		name:    name,
		model:   model,
		timeout: callTimeout(),
	}, nil
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		return nil, openaiError(p.Name(), err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &types.ProviderError{
			Provider: p.Name(),
			Kind:     types.ProviderUnavailable,
			Err:      errors.New("response contained no choices"),
		}
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}
