package llm

import (
	"context"
	"fmt"
	"review-talk-go/internal/config"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps the go-openai SDK.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	defaults config.LLMGenerationConfig
}

// NewOpenAI creates a backend for the OpenAI API or any gateway that speaks it
// when BaseURL is set.
func NewOpenAI(cfg config.LLMConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		defaults: cfg.Generation,
	}
}

func (c *OpenAIClient) Name() string { return ProviderOpenAI }

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: oaMsgs,
	}
	var params chatRequest
	applyGeneration(&params, gen, c.defaults)
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
