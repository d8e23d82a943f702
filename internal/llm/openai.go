package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIModel is the reasoning-route model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls an OpenAI-compatible chat endpoint through langchaingo.
type OpenAIProvider struct {
	model llms.Model
	name  string
}

// NewOpenAIProvider builds the client. baseURL may point to any compatible endpoint.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &OpenAIProvider{model: client, name: "openai:" + model}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p.model, req.Prompt,
		llms.WithTemperature(float64(req.Temperature)),
		llms.WithMaxTokens(req.MaxOutputTokens),
	)
}
