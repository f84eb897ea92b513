package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain"
)

// Generator produces answer text via the OpenAI-compatible chat API.
type Generator struct {
	client *openai.Client
	model  string
	user   string
	logger *zap.Logger
}

// NewGenerator creates an OpenAI-compatible text generation provider.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.ChatModel,
		user:   cfg.User,
		logger: cfg.Logger,
	}
}

// GenerateText implements domain.Generator.
func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		User:  g.user,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", parseAPIError("generation", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty generation response: %w", domain.ErrGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}
