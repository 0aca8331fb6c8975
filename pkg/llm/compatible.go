package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"review-talk-go/internal/config"
	"strings"
)

// compatibleClient talks to any OpenAI-compatible /chat/completions endpoint
// (DeepSeek, vLLM, Ollama's openai shim) over SSE and accumulates the deltas.
type compatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewCompatible creates a streaming client for an OpenAI-compatible endpoint.
func NewCompatible(cfg config.LLMConfig) Backend {
	return &compatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *compatibleClient) Name() string { return "compatible" }

func (c *compatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	// 传参优先，否则从全局配置注入（若非零值）
	applyGeneration(&reqBody, gen, c.cfg.Generation)

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var answer strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			if data == "[DONE]" {
				break
			}
			var chunk chatChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil && len(chunk.Choices) > 0 {
				answer.WriteString(chunk.Choices[0].Delta.Content)
			}
		}
		if err == io.EOF {
			break
		}
	}

	text := strings.TrimSpace(answer.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func applyGeneration(req *chatRequest, gen *GenerationParams, defaults config.LLMGenerationConfig) {
	if gen != nil {
		req.Temperature = gen.Temperature
		req.TopP = gen.TopP
		req.MaxTokens = gen.MaxTokens
		return
	}
	if defaults.Temperature != 0 {
		req.Temperature = Float64(defaults.Temperature)
	}
	if defaults.TopP != 0 {
		req.TopP = Float64(defaults.TopP)
	}
	if defaults.MaxTokens != 0 {
		req.MaxTokens = Int(defaults.MaxTokens)
	}
}
