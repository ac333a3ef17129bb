package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter asks questions through the OpenAI chat completions API. Any
// OpenAI-compatible endpoint (several AI platforms expose one) can be driven
// by pointing BaseURL at it.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAIAdapter(config OpenAIConfig) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

func (a *OpenAIAdapter) Send(ctx context.Context, prompt string) (Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai returned no choices")
	}

	return Response{Content: resp.Choices[0].Message.Content}, nil
}
